package fanout

import (
	"testing"

	"github.com/go-redis/redis/v8"

	"github.com/mmynk/studygroup/internal/codec"
)

func TestRedisAccept(t *testing.T) {
	// No connection is made until a command runs.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	local := NewRedis(client, "")
	remote := NewRedis(client, "")
	if local.channel != DefaultChannel {
		t.Errorf("channel = %q, want default", local.channel)
	}

	encode := func(c Change) []byte {
		payload, err := codec.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		return payload
	}

	t.Run("remote change is delivered", func(t *testing.T) {
		collection, ok := local.accept(encode(Change{Collection: "groups/g/messages", Origin: remote.origin}))
		if !ok || collection != "groups/g/messages" {
			t.Errorf("accept = %q, %v", collection, ok)
		}
	})

	t.Run("own change is ignored", func(t *testing.T) {
		if _, ok := local.accept(encode(Change{Collection: "groups", Origin: local.origin})); ok {
			t.Error("own change accepted")
		}
	})

	t.Run("garbage is dropped", func(t *testing.T) {
		if _, ok := local.accept([]byte{0xff, 0x00}); ok {
			t.Error("malformed payload accepted")
		}
	})
}
