// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package notifier

import "codeberg.org/oliverandrich/authnotify/internal/config"

// DefaultSenderAddress is used when no sender address is configured.
const DefaultSenderAddress = "noreply@example.com"

// SenderAddress is the "from" mailbox of outgoing emails.
type SenderAddress struct {
	Address string
	Name    string
}

// ResolveSenderAddress applies the fallback policy to the configured sender:
// a missing config or address yields the no-reply default, a missing name
// becomes "".
func ResolveSenderAddress(cfg *config.SenderConfig) SenderAddress {
	if cfg == nil || cfg.Address == nil {
		return SenderAddress{Address: DefaultSenderAddress}
	}

	from := SenderAddress{Address: *cfg.Address}
	if cfg.Name != nil {
		from.Name = *cfg.Name
	}
	return from
}
