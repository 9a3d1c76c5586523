package redis

import "strings"

// Every key lives under "sf:" followed by one of these families.
const (
	keyNamespace      = "sf"
	idempotencyPrefix = "idempotency"
	cooldownPrefix    = "cooldown"
	lockPrefix        = "lock"
)

// IdempotencyKey scopes a client supplied Idempotency-Key, normally by caller.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

// CooldownKey marks a shopper who just released a hold on productID.
func (c *Client) CooldownKey(userID, productID string) string {
	return joinKey(cooldownPrefix, "reservation", userID, productID)
}

func (c *Client) LockKey(name string) string {
	return joinKey(lockPrefix, name)
}

// joinKey drops blank parts so a missing scope never yields "a::b".
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
