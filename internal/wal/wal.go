// Package wal implements the write-ahead log: an append-only sequence of
// applied mutations, split into segment files and replayed on startup.
// Each record carries a sequence number and a CRC32 checksum; the payload is
// the RESP-serialized resolved command, so replay feeds the same command
// dispatch as live traffic.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/metrics"
)

type fsyncStrategy int

const (
	fsyncAlways fsyncStrategy = iota + 1
	fsyncEverySec
	fsyncNo
)

func parseStrategy(s string) fsyncStrategy {
	switch s {
	case "always":
		return fsyncAlways
	case "no":
		return fsyncNo
	default:
		return fsyncEverySec
	}
}

// Record header: CRC32 (4) + Seq (8) + Timestamp ms (8) + PayloadLen (4)
const headerSize = 24

const segmentPrefix = "wal-"
const segmentSuffix = ".log"

// Payloads larger than this fail the sanity check during replay
const maxPayloadBytes = 1 << 30

var (
	// ErrCorruptedRecord indicates a CRC32 mismatch in a WAL record
	ErrCorruptedRecord = errors.New("wal: corrupted record (CRC32 mismatch)")
	// ErrUnhealthy indicates that a batched-mode flush failed earlier and
	// recent appends may not be durable
	ErrUnhealthy = errors.New("wal: log unhealthy after flush failure")
)

// Record is one applied mutation read back from the log.
type Record struct {
	Seq       uint64
	Timestamp int64 // unix milliseconds at append time
	Payload   []byte
}

// Log is a segmented write-ahead log. Safe for concurrent use.
type Log struct {
	mu         sync.Mutex
	dir        string
	strategy   fsyncStrategy
	segMax     int64
	active     *os.File
	activeSize int64
	nextSeq    uint64
	totalSize  atomic.Int64
	healthy    atomic.Bool
	logger     *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open opens the log directory, scans the newest segment for its last valid
// record (truncating any torn tail) and prepares it for appending.
func Open(dir string, fsync string, segmentMaxBytes int64, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	l := &Log{
		dir:      dir,
		strategy: parseStrategy(fsync),
		segMax:   segmentMaxBytes,
		nextSeq:  1,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	l.healthy.Store(true)

	segs, err := l.segments()
	if err != nil {
		return nil, err
	}

	var total int64
	for _, s := range segs[:max(len(segs)-1, 0)] {
		info, err := os.Stat(s.path)
		if err != nil {
			return nil, fmt.Errorf("wal: stat %s: %w", s.path, err)
		}
		total += info.Size()
	}

	if len(segs) == 0 {
		if err := l.startSegment(1); err != nil {
			return nil, err
		}
	} else {
		last := segs[len(segs)-1]
		lastSeq, validOffset, err := scanSegment(last.path)
		if err != nil {
			return nil, err
		}

		f, err := os.OpenFile(last.path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("wal: open segment: %w", err)
		}
		if err := f.Truncate(validOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: truncate torn tail: %w", err)
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: seek: %w", err)
		}

		l.active = f
		l.activeSize = validOffset
		if lastSeq > 0 {
			l.nextSeq = lastSeq + 1
		} else {
			l.nextSeq = last.firstSeq
		}
	}
	l.totalSize.Store(total + l.activeSize)

	if l.strategy == fsyncEverySec {
		l.wg.Add(1)
		go l.flushLoop()
	}

	return l, nil
}

// Append encodes the payloads as consecutive records and persists them
// according to the fsync strategy. Returns the sequence number of the last
// record written. In "always" mode the data is on stable storage when
// Append returns; a sync failure fails the append.
func (l *Log) Append(payloads ...[]byte) (uint64, error) {
	if len(payloads) == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UnixMilli()
	var written int64
	for _, p := range payloads {
		data := encodeRecord(l.nextSeq, now, p)
		if _, err := l.active.Write(data); err != nil {
			return 0, fmt.Errorf("wal: write record: %w", err)
		}
		written += int64(len(data))
		l.nextSeq++
	}
	l.activeSize += written
	l.totalSize.Add(written)

	if l.strategy == fsyncAlways {
		if err := l.active.Sync(); err != nil {
			return 0, fmt.Errorf("wal: sync: %w", err)
		}
	}

	last := l.nextSeq - 1

	if l.segMax > 0 && l.activeSize >= l.segMax {
		if err := l.rotate(); err != nil {
			return 0, err
		}
	}

	return last, nil
}

// LastSeq returns the sequence number of the most recently appended record.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}

// Size returns the total bytes across all segments.
func (l *Log) Size() int64 {
	return l.totalSize.Load()
}

// Healthy reports whether batched-mode flushes have been succeeding.
// Always true in "always" mode, where failures surface per append.
func (l *Log) Healthy() bool {
	return l.healthy.Load()
}

// Replay streams records with sequence numbers strictly greater than
// afterSeq, in original append order. Scanning stops at the first torn or
// corrupt record, which can only legitimately occur at the tail of the
// newest segment after a crash.
func (l *Log) Replay(afterSeq uint64, fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	segs, err := l.segments()
	if err != nil {
		return err
	}

	for _, s := range segs {
		stop, err := replaySegment(s.path, afterSeq, fn)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// TruncateThrough removes whole segments whose records are all covered by a
// snapshot at seq. The active segment is never removed.
func (l *Log) TruncateThrough(seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	segs, err := l.segments()
	if err != nil {
		return err
	}

	// A segment is redundant when the next segment starts at or before seq+1,
	// meaning every record in it has seq <= the snapshot sequence.
	for i := 0; i+1 < len(segs); i++ {
		if segs[i+1].firstSeq > seq+1 {
			break
		}
		info, statErr := os.Stat(segs[i].path)
		if err := os.Remove(segs[i].path); err != nil {
			return fmt.Errorf("wal: remove segment: %w", err)
		}
		if statErr == nil {
			l.totalSize.Add(-info.Size())
		}
		l.logger.Info("removed redundant WAL segment",
			zap.String("segment", filepath.Base(segs[i].path)),
			zap.Uint64("covered_through", seq),
		)
	}
	return nil
}

// Sync flushes and fsyncs the active segment.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.Sync()
}

// Close flushes, stops the background flusher and closes the active segment.
func (l *Log) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.active.Sync(); err != nil {
		return fmt.Errorf("wal: sync on close: %w", err)
	}
	return l.active.Close()
}

func (l *Log) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			err := l.active.Sync()
			l.mu.Unlock()
			if err != nil {
				// Batched mode: surfaced as a health signal, not per command
				l.healthy.Store(false)
				metrics.WALFlushErrorsTotal.Inc()
				l.logger.Error("WAL flush failed", zap.Error(err))
			} else if !l.healthy.Load() {
				l.healthy.Store(true)
				l.logger.Info("WAL flush recovered")
			}
		case <-l.stopChan:
			return
		}
	}
}

func (l *Log) rotate() error {
	if err := l.active.Sync(); err != nil {
		return fmt.Errorf("wal: sync before rotate: %w", err)
	}
	if err := l.active.Close(); err != nil {
		return fmt.Errorf("wal: close before rotate: %w", err)
	}
	return l.startSegment(l.nextSeq)
}

func (l *Log) startSegment(firstSeq uint64) error {
	path := filepath.Join(l.dir, segmentName(firstSeq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wal: create segment: %w", err)
	}
	l.active = f
	l.activeSize = 0
	return nil
}

type segmentInfo struct {
	path     string
	firstSeq uint64
}

// segments lists segment files ordered by first sequence number.
func (l *Log) segments() ([]segmentInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var segs []segmentInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		seqStr := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			continue
		}
		segs = append(segs, segmentInfo{path: filepath.Join(l.dir, name), firstSeq: seq})
	}

	sort.Slice(segs, func(i, j int) bool { return segs[i].firstSeq < segs[j].firstSeq })
	return segs, nil
}

func segmentName(firstSeq uint64) string {
	return fmt.Sprintf("%s%020d%s", segmentPrefix, firstSeq, segmentSuffix)
}

// scanSegment walks a segment and returns the last valid sequence number and
// the byte offset after the last valid record.
func scanSegment(path string) (lastSeq uint64, validOffset int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("wal: open segment: %w", err)
	}
	defer f.Close()

	for {
		rec, n, err := readRecord(f)
		if err != nil {
			// Torn or corrupt tail: everything before it is valid
			break
		}
		lastSeq = rec.Seq
		validOffset += int64(n)
	}
	return lastSeq, validOffset, nil
}

func replaySegment(path string, afterSeq uint64, fn func(Record) error) (stop bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("wal: open segment: %w", err)
	}
	defer f.Close()

	for {
		rec, _, err := readRecord(f)
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			// Records past a corrupt point are unusable; stop replay here
			return true, nil
		}
		if rec.Seq <= afterSeq {
			continue
		}
		if err := fn(rec); err != nil {
			return true, err
		}
	}
}

// encodeRecord frames a payload with CRC32, sequence and timestamp.
// Layout: CRC32 (4) + Seq (8) + Timestamp (8) + PayloadLen (4) + Payload
func encodeRecord(seq uint64, timestamp int64, payload []byte) []byte {
	data := make([]byte, headerSize+len(payload))

	binary.LittleEndian.PutUint64(data[4:12], seq)
	binary.LittleEndian.PutUint64(data[12:20], uint64(timestamp))
	binary.LittleEndian.PutUint32(data[20:24], uint32(len(payload)))
	copy(data[headerSize:], payload)

	checksum := crc32.ChecksumIEEE(data[4:])
	binary.LittleEndian.PutUint32(data[0:4], checksum)

	return data
}

// readRecord reads one record. Returns io.EOF at a clean end of file and
// ErrCorruptedRecord on a CRC mismatch or implausible length.
func readRecord(r io.Reader) (Record, int, error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, n, io.EOF
		}
		return Record{}, n, err
	}

	storedCRC := binary.LittleEndian.Uint32(header[0:4])
	seq := binary.LittleEndian.Uint64(header[4:12])
	timestamp := int64(binary.LittleEndian.Uint64(header[12:20]))
	payloadLen := binary.LittleEndian.Uint32(header[20:24])

	if payloadLen > maxPayloadBytes {
		return Record{}, n, ErrCorruptedRecord
	}

	payload := make([]byte, payloadLen)
	m, err := io.ReadFull(r, payload)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, n + m, io.EOF
		}
		return Record{}, n + m, err
	}

	crcBuf := make([]byte, headerSize-4+len(payload))
	copy(crcBuf, header[4:])
	copy(crcBuf[headerSize-4:], payload)
	if crc32.ChecksumIEEE(crcBuf) != storedCRC {
		return Record{}, n + m, ErrCorruptedRecord
	}

	return Record{Seq: seq, Timestamp: timestamp, Payload: payload}, headerSize + int(payloadLen), nil
}
