package resource

import (
	"fmt"
	"net"

	"github.com/serge-chat/stackd/pkg/logger"
)

// ProbePort checks that a TCP port can still be bound before a child that
// needs it is forked. The listener is bound and released immediately; the
// check is advisory (the child does the real bind moments later), but it
// turns the common "address already in use" failure into a precise launch
// error instead of a child that dies right after exec.
func ProbePort(port int) error {
	addr := fmt.Sprintf(":%d", port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Log.Warn("Port probe failed", "addr", addr, "err", err)
		return fmt.Errorf("port %d not bindable: %w", port, err)
	}
	l.Close()
	return nil
}

// Personal.AI order the ending
