package store

import (
	"errors"
	"fmt"
)

// Cache key namespaces. These strings are the wire contract with anything
// else that reads the shared cache; do not change them casually.
const (
	keyCustomerChat   = "customer:chat:"
	keyCustomerTicket = "customer:ticket:"
	keyMappingThread  = "mapping:thread:"
	keyMappingTicket  = "mapping:ticket:"
	keyBotConfig      = "bot:config:"
)

// ClearPattern names a cache key family for ClearCache. Patterns are an
// enum so arbitrary strings can never reach the key space.
type ClearPattern string

const (
	ClearCustomerChat   ClearPattern = "customer:chat"
	ClearCustomerTicket ClearPattern = "customer:ticket"
	ClearMappingThread  ClearPattern = "mapping:thread"
	ClearMappingTicket  ClearPattern = "mapping:ticket"
	ClearBotConfig      ClearPattern = "bot:config"
)

// ErrUnknownPattern is returned when ClearCache is given a pattern outside
// the enum.
var ErrUnknownPattern = errors.New("store: unknown cache pattern")

func customerChatKey(chatUserID string) string     { return keyCustomerChat + chatUserID }
func customerTicketKey(ticketCustID string) string { return keyCustomerTicket + ticketCustID }
func mappingThreadKey(threadID string) string      { return keyMappingThread + threadID }
func mappingTicketKey(ticketID string) string      { return keyMappingTicket + ticketID }
func botConfigKey(key string) string               { return keyBotConfig + key }

// keyFor resolves a validated pattern plus id into a concrete cache key.
func keyFor(pattern ClearPattern, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("store: clear %q: id is required", pattern)
	}
	switch pattern {
	case ClearCustomerChat:
		return customerChatKey(id), nil
	case ClearCustomerTicket:
		return customerTicketKey(id), nil
	case ClearMappingThread:
		return mappingThreadKey(id), nil
	case ClearMappingTicket:
		return mappingTicketKey(id), nil
	case ClearBotConfig:
		return botConfigKey(id), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
}
