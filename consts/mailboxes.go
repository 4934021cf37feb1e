package consts

const (
	// LostMailbox is the reserved bucket for undeliverable internal mail.
	// It is never a valid account name, in any case combination.
	LostMailbox = "lost"

	// PasswordFilename is the fixed name of the credential file inside
	// each account directory. It holds the hex-encoded password digest.
	PasswordFilename = "passwd"
)
