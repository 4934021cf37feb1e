// Command postale-client is a small interactive terminal client for
// the postale server. It drives the envelope protocol: register or log
// in, then send mail, browse the inbox, show mailbox stats, log out or
// quit.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/postale/postale/wire"
)

type client struct {
	conn        net.Conn
	stdin       *bufio.Scanner
	username    string
	localDomain string
}

func main() {
	addr := flag.String("addr", "localhost:14300", "Server address")
	localDomain := flag.String("localdomain", "campus.example.com", "Local mail domain used for the sender address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	c := &client{
		conn:        conn,
		stdin:       bufio.NewScanner(os.Stdin),
		localDomain: *localDomain,
	}
	c.run()
}

func (c *client) run() {
	for {
		if c.username == "" {
			if done := c.authMenu(); done {
				return
			}
		} else {
			if done := c.mainMenu(); done {
				return
			}
		}
	}
}

// exchange sends one envelope and waits for the server's reply.
func (c *client) exchange(env *wire.Envelope) (*wire.Envelope, error) {
	if err := wire.Write(c.conn, env); err != nil {
		return nil, err
	}
	return wire.Read(c.conn)
}

func (c *client) prompt(label string) string {
	fmt.Print(label)
	if !c.stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(c.stdin.Text())
}

func (c *client) authMenu() bool {
	fmt.Println()
	fmt.Println("1. Register")
	fmt.Println("2. Log in")
	fmt.Println("3. Quit")

	switch c.prompt("> ") {
	case "1":
		c.authenticate(wire.HeaderAuthRegister)
	case "2":
		c.authenticate(wire.HeaderAuthLogin)
	case "3":
		c.quit()
		return true
	default:
		fmt.Println("Unknown choice.")
	}
	return false
}

func (c *client) authenticate(header wire.Header) {
	username := c.prompt("Username: ")
	password := c.prompt("Password: ")

	env := wire.MustEnvelope(header, wire.AuthPayload{Username: username, Password: password})
	reply, err := c.exchange(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}
	c.username = strings.ToLower(username)
	fmt.Println("Welcome,", c.username)
}

func (c *client) mainMenu() bool {
	fmt.Println()
	fmt.Println("1. Send mail")
	fmt.Println("2. Read inbox")
	fmt.Println("3. Mailbox stats")
	fmt.Println("4. Log out")
	fmt.Println("5. Quit")

	switch c.prompt("> ") {
	case "1":
		c.sendMail()
	case "2":
		c.readInbox()
	case "3":
		c.showStats()
	case "4":
		c.logout()
	case "5":
		c.quit()
		return true
	default:
		fmt.Println("Unknown choice.")
	}
	return false
}

func (c *client) sendMail() {
	destination := c.prompt("To: ")
	subject := c.prompt("Subject: ")

	fmt.Println("Body (end with a single '.' line):")
	var lines []string
	for c.stdin.Scan() {
		line := c.stdin.Text()
		if line == "." {
			break
		}
		lines = append(lines, line)
	}

	env := wire.MustEnvelope(wire.HeaderEmailSending, wire.EmailPayload{
		Sender:      c.username + "@" + c.localDomain,
		Destination: destination,
		Subject:     subject,
		Date:        time.Now().UTC().Format(time.RFC1123Z),
		Content:     strings.Join(lines, "\n"),
	})
	reply, err := c.exchange(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}
	fmt.Println("Message sent.")
}

func (c *client) readInbox() {
	reply, err := c.exchange(&wire.Envelope{Header: wire.HeaderInboxRequest})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}

	var list wire.InboxListPayload
	if err := reply.DecodePayload(&list); err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(list.EmailList) == 0 {
		fmt.Println("Inbox is empty.")
		return
	}
	for _, line := range list.EmailList {
		fmt.Println(line)
	}

	choiceStr := c.prompt("Read message #: ")
	choice, err := strconv.Atoi(choiceStr)
	if err != nil {
		fmt.Println("Not a number.")
		return
	}

	reply, err = c.exchange(wire.MustEnvelope(wire.HeaderInboxChoice, wire.ChoicePayload{Choice: choice}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}

	var email wire.EmailPayload
	if err := reply.DecodePayload(&email); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println()
	fmt.Println("From:   ", email.Sender)
	fmt.Println("To:     ", email.Destination)
	fmt.Println("Subject:", email.Subject)
	fmt.Println("Date:   ", email.Date)
	fmt.Println()
	fmt.Println(email.Content)
}

func (c *client) showStats() {
	reply, err := c.exchange(&wire.Envelope{Header: wire.HeaderStatsRequest})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}

	var stats wire.StatsPayload
	if err := reply.DecodePayload(&stats); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Messages: %d\nSize:     %d bytes\n", stats.Count, stats.Size)
}

func (c *client) logout() {
	reply, err := c.exchange(&wire.Envelope{Header: wire.HeaderAuthLogout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
		os.Exit(1)
	}
	if msg := reply.ErrorMessage(); msg != "" {
		fmt.Println("Error:", msg)
		return
	}
	c.username = ""
	fmt.Println("Logged out.")
}

// quit notifies the server and exits; BYE gets no response.
func (c *client) quit() {
	_ = wire.Write(c.conn, &wire.Envelope{Header: wire.HeaderBye})
	fmt.Println("Bye.")
}
