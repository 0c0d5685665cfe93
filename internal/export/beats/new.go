// Forwards relayed records to a beats (lumberjack v2) server
package beats

import (
	"fmt"
	"time"

	lumberjack "github.com/elastic/go-lumber/client/v2"
)

type Publisher struct {
	sink *lumberjack.SyncClient
}

// Creates new beats output. Returns nil nil if no endpoint.
func New(endpoint string, compressionLevel int, timeout time.Duration) (publisher *Publisher, err error) {
	if endpoint == "" {
		return
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ljClient, err := lumberjack.SyncDial(endpoint,
		lumberjack.CompressionLevel(compressionLevel),
		lumberjack.Timeout(timeout),
	)
	if err != nil {
		err = fmt.Errorf("failed connection to beats server: %w", err)
		return
	}

	publisher = &Publisher{
		sink: ljClient,
	}
	return
}

func (publisher *Publisher) Close() (err error) {
	if publisher == nil || publisher.sink == nil {
		return
	}
	err = publisher.sink.Close()
	return
}
