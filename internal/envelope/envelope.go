package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"stegapi/internal/crypt"
	"stegapi/internal/model"
)

// Layout (big-endian):
//
//	magic "SG" | version | flags
//	[deadline unix millis int64]          flagDeadline
//	[lat float64 | lng float64 | radius]  flagGeofence
//	kdf time uint32 | kdf memory uint32 | kdf threads uint8
//	salt | nonce | ciphertext length uint32 | ciphertext | tag
const (
	Version = 1

	flagDeadline byte = 1 << 0
	flagGeofence byte = 1 << 1
	knownFlags        = flagDeadline | flagGeofence

	headerSize   = 4
	deadlineSize = 8
	geofenceSize = 24
	kdfSize      = 9
	lengthSize   = 4
)

var magic = [2]byte{'S', 'G'}

var ErrCorruptEnvelope = errors.New("corrupt envelope")

// Envelope bundles the release policy with the sealed payload. The policy is
// stored in the clear so it can be evaluated without the password.
type Envelope struct {
	Policy model.ReleasePolicy
	Sealed crypt.Sealed
}

// Size returns the exact marshalled length of an envelope for policy p carrying
// plaintextLen bytes (GCM ciphertext is as long as its plaintext).
func Size(p model.ReleasePolicy, plaintextLen int) int {
	return policySize(p) + kdfSize + crypt.SaltSize + crypt.NonceSize + lengthSize + plaintextLen + crypt.TagSize
}

func policySize(p model.ReleasePolicy) int {
	n := headerSize
	if p.NotBefore != nil {
		n += deadlineSize
	}
	if p.Geofence != nil {
		n += geofenceSize
	}
	return n
}

// AssociatedData returns the policy section of the envelope. It is bound to the
// ciphertext as AEAD associated data so the cleartext policy cannot be altered.
func AssociatedData(p model.ReleasePolicy) []byte {
	buf := make([]byte, 0, policySize(p))
	var flags byte
	if p.NotBefore != nil {
		flags |= flagDeadline
	}
	if p.Geofence != nil {
		flags |= flagGeofence
	}
	buf = append(buf, magic[0], magic[1], Version, flags)
	if p.NotBefore != nil {
		buf = binary.BigEndian.AppendUint64(buf, uint64(p.NotBefore.UnixMilli()))
	}
	if g := p.Geofence; g != nil {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(g.Center.Lat))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(g.Center.Lng))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(g.RadiusMeters))
	}
	return buf
}

// Marshal serializes e.
func Marshal(e *Envelope) ([]byte, error) {
	s := e.Sealed
	switch {
	case len(s.Salt) != crypt.SaltSize:
		return nil, fmt.Errorf("salt must be %d bytes, got %d", crypt.SaltSize, len(s.Salt))
	case len(s.Nonce) != crypt.NonceSize:
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", crypt.NonceSize, len(s.Nonce))
	case len(s.Tag) != crypt.TagSize:
		return nil, fmt.Errorf("tag must be %d bytes, got %d", crypt.TagSize, len(s.Tag))
	case uint64(len(s.Ciphertext)) > math.MaxUint32:
		return nil, fmt.Errorf("ciphertext too long: %d bytes", len(s.Ciphertext))
	}
	if err := validatePolicy(e.Policy); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, Size(e.Policy, len(s.Ciphertext)))
	buf = append(buf, AssociatedData(e.Policy)...)
	buf = binary.BigEndian.AppendUint32(buf, s.Params.Time)
	buf = binary.BigEndian.AppendUint32(buf, s.Params.MemoryKiB)
	buf = append(buf, s.Params.Threads)
	buf = append(buf, s.Salt...)
	buf = append(buf, s.Nonce...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s.Ciphertext)))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)
	return buf, nil
}

// Unmarshal parses data produced by Marshal. Every structural problem is
// reported as ErrCorruptEnvelope.
func Unmarshal(data []byte) (*Envelope, error) {
	r := reader{buf: data}

	head := r.next(headerSize)
	if head == nil {
		return nil, corrupt("truncated header")
	}
	if head[0] != magic[0] || head[1] != magic[1] {
		return nil, corrupt("bad magic")
	}
	if head[2] != Version {
		return nil, corrupt("unsupported version %d", head[2])
	}
	flags := head[3]
	if flags&^knownFlags != 0 {
		return nil, corrupt("unknown flags %#x", flags)
	}

	var e Envelope
	if flags&flagDeadline != 0 {
		b := r.next(deadlineSize)
		if b == nil {
			return nil, corrupt("truncated deadline")
		}
		t := time.UnixMilli(int64(binary.BigEndian.Uint64(b))).UTC()
		e.Policy.NotBefore = &t
	}
	if flags&flagGeofence != 0 {
		b := r.next(geofenceSize)
		if b == nil {
			return nil, corrupt("truncated geofence")
		}
		e.Policy.Geofence = &model.Geofence{
			Center: model.Coordinates{
				Lat: math.Float64frombits(binary.BigEndian.Uint64(b[0:8])),
				Lng: math.Float64frombits(binary.BigEndian.Uint64(b[8:16])),
			},
			RadiusMeters: math.Float64frombits(binary.BigEndian.Uint64(b[16:24])),
		}
	}
	if err := validatePolicy(e.Policy); err != nil {
		return nil, err
	}

	kdf := r.next(kdfSize)
	if kdf == nil {
		return nil, corrupt("truncated kdf params")
	}
	e.Sealed.Params = crypt.Params{
		Time:      binary.BigEndian.Uint32(kdf[0:4]),
		MemoryKiB: binary.BigEndian.Uint32(kdf[4:8]),
		Threads:   kdf[8],
	}
	if err := e.Sealed.Params.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}

	if e.Sealed.Salt = r.next(crypt.SaltSize); e.Sealed.Salt == nil {
		return nil, corrupt("truncated salt")
	}
	if e.Sealed.Nonce = r.next(crypt.NonceSize); e.Sealed.Nonce == nil {
		return nil, corrupt("truncated nonce")
	}
	lb := r.next(lengthSize)
	if lb == nil {
		return nil, corrupt("truncated ciphertext length")
	}
	n := binary.BigEndian.Uint32(lb)
	if uint64(n)+crypt.TagSize != uint64(r.remaining()) {
		return nil, corrupt("ciphertext length %d inconsistent with %d remaining bytes", n, r.remaining())
	}
	e.Sealed.Ciphertext = r.next(int(n))
	e.Sealed.Tag = r.next(crypt.TagSize)

	return &e, nil
}

func validatePolicy(p model.ReleasePolicy) error {
	if g := p.Geofence; g != nil {
		if !g.Center.Valid() {
			return corrupt("geofence center out of range")
		}
		if math.IsNaN(g.RadiusMeters) || math.IsInf(g.RadiusMeters, 0) || g.RadiusMeters <= 0 {
			return corrupt("geofence radius must be positive")
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptEnvelope, fmt.Sprintf(format, args...))
}

type reader struct {
	buf []byte
	off int
}

// next returns a copy of the following n bytes, or nil when fewer remain.
func (r *reader) next(n int) []byte {
	if n < 0 || r.remaining() < n {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}
