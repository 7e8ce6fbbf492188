package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	maxTelegramMessageLen = 4096
	maxAlertsPerChat      = 50
)

// DigestEntry is one distinct alert text and how often it was raised since
// the last flush.
type DigestEntry struct {
	Message string
	First   time.Time
	Repeats int
}

// DigestBuffer collects operator alerts and delivers them per chat on an
// interval, one message per flush instead of one per log record. A sweep that
// fails the same way for many grants produces one line with a repeat count.
type DigestBuffer struct {
	mu       sync.Mutex
	clock    quartz.Clock
	entries  map[int64][]*DigestEntry
	dropped  map[int64]int
	interval time.Duration
	send     func(chatId int64, text string)
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
}

func NewDigestBuffer(send func(chatId int64, text string), interval time.Duration) *DigestBuffer {
	return &DigestBuffer{
		clock:    quartz.NewReal(),
		entries:  make(map[int64][]*DigestEntry),
		dropped:  make(map[int64]int),
		interval: interval,
		send:     send,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Add queues msg for chatId. Beyond maxAlertsPerChat distinct alerts per
// interval new ones are only counted.
func (d *DigestBuffer) Add(chatId int64, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.entries[chatId] {
		if e.Message == msg {
			e.Repeats++
			return
		}
	}
	if len(d.entries[chatId]) >= maxAlertsPerChat {
		d.dropped[chatId]++
		return
	}
	d.entries[chatId] = append(d.entries[chatId], &DigestEntry{
		Message: msg,
		First:   d.clock.Now(),
		Repeats: 1,
	})
}

func (d *DigestBuffer) StartTicker() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	go func() {
		defer close(d.done)
		ticker := d.clock.NewTicker(d.interval, "digest")
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Flush()
			case <-d.stopCh:
				d.Flush()
				return
			}
		}
	}()
}

func (d *DigestBuffer) Flush() {
	d.mu.Lock()
	snapshot, dropped := d.entries, d.dropped
	d.entries = make(map[int64][]*DigestEntry)
	d.dropped = make(map[int64]int)
	d.mu.Unlock()

	for chatId, entries := range snapshot {
		if len(entries) == 0 {
			continue
		}
		digest := formatDigest(entries, dropped[chatId])
		for _, part := range splitMessage(digest, maxTelegramMessageLen) {
			d.send(chatId, part)
		}
	}
}

func (d *DigestBuffer) Stop() {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		d.Flush()
		return
	}
	close(d.stopCh)
	<-d.done
}

// formatDigest renders entries as plain text; a single alert raised once is
// sent as is.
func formatDigest(entries []*DigestEntry, dropped int) string {
	if len(entries) == 1 && entries[0].Repeats == 1 && dropped == 0 {
		return entries[0].Message
	}
	total := dropped
	for _, e := range entries {
		total += e.Repeats
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d alerts\n", total)
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n[%s] %s", e.First.UTC().Format("15:04:05"), e.Message)
		if e.Repeats > 1 {
			fmt.Fprintf(&sb, " (x%d)", e.Repeats)
		}
		sb.WriteString("\n")
	}
	if dropped > 0 {
		fmt.Fprintf(&sb, "\n%d more not shown\n", dropped)
	}
	return sb.String()
}
