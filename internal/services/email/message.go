// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

// Address is a mailbox with an optional display name.
type Address struct {
	Address string
	Name    string
}

// Message describes a templated email before it is scheduled for delivery.
type Message struct {
	Data     any
	To       string
	Subject  string
	Template string
	From     Address
}

// SetTo sets the recipient.
func (m *Message) SetTo(to string) *Message {
	m.To = to
	return m
}

// SetFrom sets the sender mailbox.
func (m *Message) SetFrom(address, name string) *Message {
	m.From = Address{Address: address, Name: name}
	return m
}

// SetSubject sets the subject line.
func (m *Message) SetSubject(subject string) *Message {
	m.Subject = subject
	return m
}

// Body is a rendered email in both formats.
type Body struct {
	HTML string
	Text string
}
