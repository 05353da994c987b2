package vertex

import (
	"encoding/binary"
	"errors"
	"sort"
	"time"

	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/primitives"
)

const version byte = 1

var (
	ErrBadVersion     = errors.New("vertex: unsupported encoding version")
	ErrHeaderTooShort = errors.New("vertex: header truncated")
	ErrBadParentCount = errors.New("vertex: parent_count out of [1,8] range")
	ErrTrailerShort   = errors.New("vertex: trailer truncated")
)

// EncodeHeaderAndBody produces the bit-exact "header || payload_body" bytes
// that are both hashed into the VertexId and signed, per §6:
//
//	1 byte version; 1 byte payload_tag; 8 bytes BE creation_time;
//	1 byte parent_count; 32*parent_count bytes of parent ids ascending;
//	32 bytes creator public-key digest; then the tag-dependent payload body.
func EncodeHeaderAndBody(v *Vertex) ([]byte, error) {
	if len(v.Parents) == 0 || len(v.Parents) > MaxParents {
		return nil, ErrBadParentCount
	}
	sortedParents := append([]ids.VertexID(nil), v.Parents...)
	sort.Slice(sortedParents, func(i, j int) bool {
		return sortedParents[i].Less(sortedParents[j])
	})

	body, err := v.Payload.Encode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 1+1+8+1+32*len(sortedParents)+32+len(body))
	buf = append(buf, version)
	buf = append(buf, byte(v.Payload.Tag))

	var timeBuf [8]byte
	binary.BigEndian.PutUint64(timeBuf[:], uint64(v.CreationTime.UnixNano()))
	buf = append(buf, timeBuf[:]...)

	buf = append(buf, byte(len(sortedParents)))
	for _, p := range sortedParents {
		buf = append(buf, p[:]...)
	}
	buf = append(buf, v.Creator[:]...)
	buf = append(buf, body...)
	return buf, nil
}

// Encode produces the full wire representation: header || payload_body ||
// trailer(sig_len || sig). The signature covers header||payload_body, not
// the trailer (§6).
func Encode(v *Vertex) ([]byte, error) {
	headerAndBody, err := EncodeHeaderAndBody(v)
	if err != nil {
		return nil, err
	}
	var sigLenBuf [4]byte
	binary.BigEndian.PutUint32(sigLenBuf[:], uint32(len(v.CreatorSignature)))
	out := make([]byte, 0, len(headerAndBody)+4+len(v.CreatorSignature))
	out = append(out, headerAndBody...)
	out = append(out, sigLenBuf[:]...)
	out = append(out, v.CreatorSignature...)
	return out, nil
}

// Decode parses a wire representation produced by Encode and recomputes its
// VertexId via hasher, so decode(encode(v)) recovers every encoded field and
// hash(encode(v)) equals v.ID. Height and Confidence are not part of the
// encoding and come back zero.
func Decode(hasher primitives.Hasher, raw []byte) (*Vertex, error) {
	if len(raw) < 1+1+8+1+32 {
		return nil, ErrHeaderTooShort
	}
	orig := raw

	v := &Vertex{}
	if raw[0] != version {
		return nil, ErrBadVersion
	}
	tag := mutation.Tag(raw[1])
	raw = raw[2:]

	creationNanos := binary.BigEndian.Uint64(raw[:8])
	v.CreationTime = time.Unix(0, int64(creationNanos)).UTC()
	raw = raw[8:]

	parentCount := int(raw[0])
	if parentCount < 1 || parentCount > MaxParents {
		return nil, ErrBadParentCount
	}
	raw = raw[1:]
	if len(raw) < 32*parentCount+32 {
		return nil, ErrHeaderTooShort
	}
	v.Parents = make([]ids.VertexID, parentCount)
	for i := 0; i < parentCount; i++ {
		copy(v.Parents[i][:], raw[:32])
		raw = raw[32:]
	}
	copy(v.Creator[:], raw[:32])
	raw = raw[32:]

	payload, consumed, err := decodePayload(tag, raw)
	if err != nil {
		return nil, err
	}
	v.Payload = payload
	raw = raw[consumed:]

	bodyEnd := len(orig) - len(raw)
	headerAndBody := orig[:bodyEnd]

	if len(raw) < 4 {
		return nil, ErrTrailerShort
	}
	sigLen := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	if uint64(len(raw)) < uint64(sigLen) {
		return nil, ErrTrailerShort
	}
	v.CreatorSignature = append([]byte(nil), raw[:sigLen]...)

	id, err := hasher.Hash(headerAndBody)
	if err != nil {
		return nil, err
	}
	v.ID = id
	return v, nil
}

// decodePayload decodes a tag-dependent payload body out of a buffer whose
// tail is the trailer, returning how many bytes of buf were consumed by the
// body so the caller can locate the trailer. mutation.Decode doesn't know
// where the body ends for variable-length variants, so the length is worked
// out per tag: fixed-size bodies use their constant size, and Mint,
// ConfigureFees and DeployImmutable read their length prefixes.
func decodePayload(tag mutation.Tag, buf []byte) (*mutation.Mutation, int, error) {
	switch tag {
	case mutation.TagTransfer:
		const n = 32 + 32 + 16 + 8 + 16
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagBurn:
		const n = 32 + 16 + 8
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagVerifyAgent:
		const n = 32 + 32
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagUpdateUsage:
		const n = 32 + 8
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagMint:
		if len(buf) < 32+16+8+4 {
			return nil, 0, ErrHeaderTooShort
		}
		sigLen := binary.BigEndian.Uint32(buf[32+16+8 : 32+16+8+4])
		n := 32 + 16 + 8 + 4 + int(sigLen)
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagConfigureFees:
		if len(buf) < 4 {
			return nil, 0, ErrHeaderTooShort
		}
		paramsLen := binary.BigEndian.Uint32(buf[:4])
		off := 4 + int(paramsLen)
		if len(buf) < off+4 {
			return nil, 0, ErrHeaderTooShort
		}
		sigLen := binary.BigEndian.Uint32(buf[off : off+4])
		n := off + 4 + int(sigLen)
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	case mutation.TagDeployImmutable:
		if len(buf) < 8+4 {
			return nil, 0, ErrHeaderTooShort
		}
		sigLen := binary.BigEndian.Uint32(buf[8 : 8+4])
		n := 8 + 4 + int(sigLen)
		if len(buf) < n {
			return nil, 0, ErrHeaderTooShort
		}
		m, err := mutation.Decode(tag, buf[:n])
		return m, n, err
	default:
		return nil, 0, mutation.ErrUnknownTag
	}
}

// VerifySignature checks that the creator_signature verifies against the
// declared creator public key over header||payload_body. pubKey is supplied
// by the caller (resolved from Creator's digest via an external keystore
// collaborator, out of scope here).
func VerifySignature(verifier primitives.Verifier, v *Vertex, pubKey []byte) (bool, error) {
	headerAndBody, err := EncodeHeaderAndBody(v)
	if err != nil {
		return false, err
	}
	return verifier.Verify(pubKey, headerAndBody, v.CreatorSignature)
}

// ComputeID hashes header||payload_body to produce the VertexId, for
// submitters that need the id before signing.
func ComputeID(hasher primitives.Hasher, v *Vertex) (ids.VertexID, error) {
	headerAndBody, err := EncodeHeaderAndBody(v)
	if err != nil {
		return ids.ID{}, err
	}
	return hasher.Hash(headerAndBody)
}
