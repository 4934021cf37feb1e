package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	env := MustEnvelope(HeaderAuthRegister, AuthPayload{Username: "alice", Password: "Passw0rd12"})
	require.NoError(t, Write(&buf, env))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, HeaderAuthRegister, got.Header)

	var payload AuthPayload
	require.NoError(t, got.DecodePayload(&payload))
	require.Equal(t, "alice", payload.Username)
	require.Equal(t, "Passw0rd12", payload.Password)
}

func TestReadWriteNoPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Write(&buf, &Envelope{Header: HeaderBye}))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, HeaderBye, got.Header)
	require.Empty(t, got.Payload)
}

func TestReadMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Envelope{Header: HeaderStatsRequest}))
	require.NoError(t, Write(&buf, &Envelope{Header: HeaderBye}))

	first, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, HeaderStatsRequest, first.Header)

	second, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, HeaderBye, second.Header)
}

func TestReadClosedStream(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	require.Equal(t, io.EOF, err)
}

func TestReadZeroLengthFrame(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.Equal(t, io.EOF, err)
}

func TestReadOversizeFrame(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)

	_, err := Read(bytes.NewReader(prefix[:]))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Envelope{Header: HeaderBye}))

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := Read(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestReadMalformedJSON(t *testing.T) {
	body := []byte("{not json")
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	_, err := Read(bytes.NewReader(append(prefix[:], body...)))
	require.Error(t, err)
}

func TestErrorEnvelope(t *testing.T) {
	env := Error("no such user")
	require.Equal(t, HeaderError, env.Header)
	require.Equal(t, "no such user", env.ErrorMessage())

	require.Empty(t, OK().ErrorMessage())
}

func TestDecodePayloadMissing(t *testing.T) {
	env := &Envelope{Header: HeaderAuthLogin}
	var payload AuthPayload
	require.Error(t, env.DecodePayload(&payload))
}
