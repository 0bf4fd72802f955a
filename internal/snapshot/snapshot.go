// Package snapshot persists full copies of the dataset to disk and loads
// them back at startup. A snapshot records the WAL sequence number it
// covers, so recovery only replays log records written after it. Files are
// written to a temporary name, fsynced and renamed, and older generations
// are kept as fallbacks against a corrupted newest file.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/keyspace"
)

var magic = []byte("DUSKSNAP")

const formatVersion uint32 = 1

const filePrefix = "snap-"
const fileSuffix = ".dusk"

var (
	// ErrCorrupted indicates a snapshot file that failed validation
	ErrCorrupted = errors.New("snapshot: file corrupted")
	// ErrNoSnapshot indicates that no usable snapshot exists
	ErrNoSnapshot = errors.New("snapshot: no usable snapshot found")
)

// Entry is one persisted key with its value. The expiration deadline rides
// on the keyspace entry itself.
type Entry struct {
	Key   string
	Value *keyspace.Entry
}

// Manager writes and reads snapshot generations in a directory.
type Manager struct {
	dir    string
	retain int
	logger *zap.Logger
}

func NewManager(dir string, retain int, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	if retain < 1 {
		retain = 1
	}
	return &Manager{dir: dir, retain: retain, logger: logger}, nil
}

// Save writes all entries as a new snapshot generation covering lastSeq,
// then prunes generations beyond the retain count. The entries must be a
// stable copy: Save serializes outside any engine lock.
func (m *Manager) Save(entries []Entry, lastSeq uint64) (string, error) {
	started := time.Now()

	tmp, err := os.CreateTemp(m.dir, "snap-tmp-*")
	if err != nil {
		return "", fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	crc := crc32.NewIEEE()
	w := bufio.NewWriter(io.MultiWriter(tmp, crc))

	if err := writeHeader(w, lastSeq, uint64(len(entries))); err != nil {
		tmp.Close()
		return "", err
	}
	for i := range entries {
		if err := writeEntry(w, &entries[i]); err != nil {
			tmp.Close()
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("snapshot: flush: %w", err)
	}

	// Trailing checksum over everything before it
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	if _, err := tmp.Write(sum[:]); err != nil {
		tmp.Close()
		return "", fmt.Errorf("snapshot: write checksum: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close temp file: %w", err)
	}

	final := filepath.Join(m.dir, fmt.Sprintf("%s%020d%s", filePrefix, lastSeq, fileSuffix))
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("snapshot: rename into place: %w", err)
	}

	m.logger.Info("snapshot written",
		zap.String("file", filepath.Base(final)),
		zap.Uint64("last_seq", lastSeq),
		zap.Int("keys", len(entries)),
		zap.Duration("took", time.Since(started)),
	)

	m.prune()
	return final, nil
}

// LoadNewest reads the newest valid snapshot, falling back to older
// generations when a file fails validation. Returns ErrNoSnapshot when the
// directory holds nothing usable.
func (m *Manager) LoadNewest() ([]Entry, uint64, error) {
	gens, err := m.generations()
	if err != nil {
		return nil, 0, err
	}

	for i := len(gens) - 1; i >= 0; i-- {
		entries, seq, err := loadFile(gens[i])
		if err == nil {
			return entries, seq, nil
		}
		m.logger.Warn("skipping unusable snapshot",
			zap.String("file", filepath.Base(gens[i])),
			zap.Error(err),
		)
	}
	return nil, 0, ErrNoSnapshot
}

func (m *Manager) prune() {
	gens, err := m.generations()
	if err != nil {
		m.logger.Warn("snapshot prune skipped", zap.Error(err))
		return
	}
	for len(gens) > m.retain {
		victim := gens[0]
		gens = gens[1:]
		if err := os.Remove(victim); err != nil {
			m.logger.Warn("failed to prune snapshot", zap.String("file", victim), zap.Error(err))
			continue
		}
		m.logger.Info("pruned old snapshot", zap.String("file", filepath.Base(victim)))
	}
}

// generations lists snapshot files oldest first.
func (m *Manager) generations() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		seqStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if _, err := strconv.ParseUint(seqStr, 10, 64); err != nil {
			continue
		}
		files = append(files, filepath.Join(m.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func writeHeader(w *bufio.Writer, lastSeq, count uint64) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	buf := make([]byte, 4+8+8+8)
	binary.LittleEndian.PutUint32(buf[0:4], formatVersion)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(time.Now().UnixMilli()))
	binary.LittleEndian.PutUint64(buf[12:20], lastSeq)
	binary.LittleEndian.PutUint64(buf[20:28], count)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	return nil
}

func writeEntry(w *bufio.Writer, e *Entry) error {
	if err := writeBytes(w, []byte(e.Key)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(e.Value.Kind)); err != nil {
		return fmt.Errorf("snapshot: write entry: %w", err)
	}
	var at [8]byte
	binary.LittleEndian.PutUint64(at[:], uint64(e.Value.ExpireAt))
	if _, err := w.Write(at[:]); err != nil {
		return fmt.Errorf("snapshot: write entry: %w", err)
	}
	return writeValue(w, e.Value)
}

func writeValue(w *bufio.Writer, v *keyspace.Entry) error {
	switch v.Kind {
	case keyspace.KindString:
		return writeBytes(w, v.Str)
	case keyspace.KindList:
		items := v.List.Range(0, -1)
		if err := writeCount(w, len(items)); err != nil {
			return err
		}
		for _, it := range items {
			if err := writeBytes(w, it); err != nil {
				return err
			}
		}
	case keyspace.KindHash:
		pairs := v.Hash.GetAll()
		if err := writeCount(w, len(pairs)); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := writeBytes(w, []byte(p.Field)); err != nil {
				return err
			}
			if err := writeBytes(w, p.Value); err != nil {
				return err
			}
		}
	case keyspace.KindSet:
		members := v.Set.Members()
		if err := writeCount(w, len(members)); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeBytes(w, []byte(m)); err != nil {
				return err
			}
		}
	case keyspace.KindZSet:
		scored := v.ZSet.All()
		if err := writeCount(w, len(scored)); err != nil {
			return err
		}
		for _, s := range scored {
			if err := writeBytes(w, []byte(s.Member)); err != nil {
				return err
			}
			var sc [8]byte
			binary.LittleEndian.PutUint64(sc[:], math.Float64bits(s.Score))
			if _, err := w.Write(sc[:]); err != nil {
				return fmt.Errorf("snapshot: write score: %w", err)
			}
		}
	default:
		return fmt.Errorf("snapshot: unknown value kind %d", v.Kind)
	}
	return nil
}

func writeCount(w *bufio.Writer, n int) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("snapshot: write count: %w", err)
	}
	return nil
}

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := writeCount(w, len(b)); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("snapshot: write bytes: %w", err)
	}
	return nil
}

func loadFile(path string) ([]Entry, uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: read file: %w", err)
	}
	if len(data) < len(magic)+28+4 {
		return nil, 0, ErrCorrupted
	}

	body, sum := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(sum) {
		return nil, 0, ErrCorrupted
	}

	r := bytes.NewReader(body)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || !bytes.Equal(head, magic) {
		return nil, 0, ErrCorrupted
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, 0, ErrCorrupted
	}
	if version != formatVersion {
		return nil, 0, fmt.Errorf("snapshot: unsupported format version %d", version)
	}

	var createdMs, lastSeq, count uint64
	if err := binary.Read(r, binary.LittleEndian, &createdMs); err != nil {
		return nil, 0, ErrCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &lastSeq); err != nil {
		return nil, 0, ErrCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, ErrCorrupted
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, 0, ErrCorrupted
		}
		entries = append(entries, e)
	}
	if r.Len() != 0 {
		return nil, 0, ErrCorrupted
	}

	return entries, lastSeq, nil
}

func readEntry(r *bytes.Reader) (Entry, error) {
	key, err := readBytes(r)
	if err != nil {
		return Entry{}, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Entry{}, err
	}
	var at uint64
	if err := binary.Read(r, binary.LittleEndian, &at); err != nil {
		return Entry{}, err
	}

	kind := keyspace.Kind(kindByte)
	value := &keyspace.Entry{Kind: kind, ExpireAt: int64(at)}

	switch kind {
	case keyspace.KindString:
		value.Str, err = readBytes(r)
		if err != nil {
			return Entry{}, err
		}
	case keyspace.KindList:
		n, err := readCount(r)
		if err != nil {
			return Entry{}, err
		}
		value.List = keyspace.NewList()
		for i := 0; i < n; i++ {
			item, err := readBytes(r)
			if err != nil {
				return Entry{}, err
			}
			value.List.RPush(item)
		}
	case keyspace.KindHash:
		n, err := readCount(r)
		if err != nil {
			return Entry{}, err
		}
		value.Hash = keyspace.NewHash()
		for i := 0; i < n; i++ {
			field, err := readBytes(r)
			if err != nil {
				return Entry{}, err
			}
			val, err := readBytes(r)
			if err != nil {
				return Entry{}, err
			}
			value.Hash.Set(string(field), val)
		}
	case keyspace.KindSet:
		n, err := readCount(r)
		if err != nil {
			return Entry{}, err
		}
		value.Set = keyspace.NewSet()
		for i := 0; i < n; i++ {
			member, err := readBytes(r)
			if err != nil {
				return Entry{}, err
			}
			value.Set.Add(string(member))
		}
	case keyspace.KindZSet:
		n, err := readCount(r)
		if err != nil {
			return Entry{}, err
		}
		value.ZSet = keyspace.NewSortedSet()
		for i := 0; i < n; i++ {
			member, err := readBytes(r)
			if err != nil {
				return Entry{}, err
			}
			var bits uint64
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return Entry{}, err
			}
			value.ZSet.Add(keyspace.ScoredMember{
				Member: string(member),
				Score:  math.Float64frombits(bits),
			})
		}
	default:
		return Entry{}, fmt.Errorf("snapshot: unknown value kind %d", kindByte)
	}

	return Entry{Key: string(key), Value: value}, nil
}

func readCount(r *bytes.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, ErrCorrupted
	}
	return int(n), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
