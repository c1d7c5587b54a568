package auth

import (
	"context"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
	"aphorist/pkg/logger"
	"aphorist/pkg/telemetry"
)

// Blocklist answers "is this IP blocked" from the store. The lookup is
// advisory: when the backend errors the check fails OPEN, the request is
// admitted and the failure is logged and counted. Blocking availability on
// blocklist reads would turn a store hiccup into a full outage.
type Blocklist struct {
	store commands.Store
}

func NewBlocklist(store commands.Store) *Blocklist {
	return &Blocklist{store: store}
}

func blockKey(ip string) string { return "ipBlock:" + keys.Escape(ip) }

// Blocked reports whether ip is on the blocklist. Backend failures admit.
func (b *Blocklist) Blocked(ctx context.Context, ip string) bool {
	if b == nil || b.store == nil || ip == "" {
		return false
	}
	_, found, err := b.store.Get(ctx, blockKey(ip))
	if err != nil {
		telemetry.BlocklistFailOpen.Inc()
		logger.Error("blocklist_check_failed_open", "ip", ip, "error", err)
		return false
	}
	return found
}

// Block adds ip to the blocklist.
func (b *Blocklist) Block(ctx context.Context, ip string) error {
	return b.store.Set(ctx, blockKey(ip), "1")
}

// Unblock removes ip from the blocklist.
func (b *Blocklist) Unblock(ctx context.Context, ip string) error {
	_, err := b.store.Del(ctx, blockKey(ip))
	return err
}
