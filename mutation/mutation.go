// Package mutation defines the tagged Mutation variants a vertex payload may
// carry (§3) and their canonical, bit-exact wire encoding (§6:
// "Payload body: tag-dependent, each field length-prefixed with a 4-byte
// big-endian u32 where variable").
package mutation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/ids"
)

// Tag identifies which Mutation variant a payload_tag byte selects.
type Tag uint8

const (
	TagTransfer Tag = iota
	TagMint
	TagBurn
	TagVerifyAgent
	TagUpdateUsage
	TagConfigureFees
	TagDeployImmutable
)

func (t Tag) String() string {
	switch t {
	case TagTransfer:
		return "Transfer"
	case TagMint:
		return "Mint"
	case TagBurn:
		return "Burn"
	case TagVerifyAgent:
		return "VerifyAgent"
	case TagUpdateUsage:
		return "UpdateUsage"
	case TagConfigureFees:
		return "ConfigureFees"
	case TagDeployImmutable:
		return "DeployImmutable"
	default:
		return "Unknown"
	}
}

var (
	ErrUnknownTag      = errors.New("mutation: unknown payload tag")
	ErrTruncated       = errors.New("mutation: truncated payload body")
	ErrFieldTooLarge   = errors.New("mutation: length-prefixed field exceeds buffer")
	ErrWrongDigestSize = errors.New("mutation: digest field has wrong size")
)

// Mutation is the tagged variant from §3. Exactly one of the typed fields is
// meaningful, selected by Tag.
type Mutation struct {
	Tag Tag

	Transfer        *Transfer
	Mint            *Mint
	Burn            *Burn
	VerifyAgent     *VerifyAgent
	UpdateUsage     *UpdateUsage
	ConfigureFees   *ConfigureFees
	DeployImmutable *DeployImmutable
}

// Transfer moves amount rUv from one account to another, burning fee_commit
// units of fee in the process (§4.6).
type Transfer struct {
	From      ids.AccountID
	To        ids.AccountID
	Amount    amount.Uint128
	Nonce     uint64
	FeeCommit amount.Uint128
}

// Mint creates new rUv out of thin air, authorized by a signature over the
// mint itself (checked by the ledger against the genesis authority key).
type Mint struct {
	To           ids.AccountID
	Amount       amount.Uint128
	AuthoritySig []byte
	AuthorityNonce uint64
}

// Burn destroys amount rUv from an account's balance.
type Burn struct {
	From   ids.AccountID
	Amount amount.Uint128
	Nonce  uint64
}

// VerifyAgent marks an account as verified once proof_digest has been
// checked against an externally supplied verifier contract (§4.6, treated
// as a pure predicate in tests).
type VerifyAgent struct {
	Account     ids.AccountID
	ProofDigest ids.ID
}

// UpdateUsage overwrites an account's monthly usage counter and resets its
// rolling window (§4.8).
type UpdateUsage struct {
	Account     ids.AccountID
	MonthlyRuv  uint64
}

// ConfigureFees replaces the network's fee parameters, subject to the
// immutability gate (§4.9). Params is the canonical encoding of
// fees.Params; kept as opaque bytes here to avoid an import cycle between
// mutation and fees (fees.Params.Encode/Decode is the inverse).
type ConfigureFees struct {
	Params       []byte
	AuthoritySig []byte
}

// DeployImmutable starts the immutability grace period (§4.9).
type DeployImmutable struct {
	GraceSeconds uint64
	AuthoritySig []byte
}

// ConflictKey derives the logical slot this mutation competes for, per
// §4.3. Transfer/Burn conflict on (account, nonce); Mint conflicts on
// ("mint", authority_nonce); everything else is a named config slot.
type ConflictKey struct {
	Account ids.AccountID
	Nonce   uint64
	Slot    string
}

func (k ConflictKey) String() string {
	if k.Slot != "" {
		return k.Slot
	}
	return fmt.Sprintf("%s:%d", k.Account, k.Nonce)
}

func (m *Mutation) ConflictKey() (ConflictKey, error) {
	switch m.Tag {
	case TagTransfer:
		return ConflictKey{Account: m.Transfer.From, Nonce: m.Transfer.Nonce}, nil
	case TagBurn:
		return ConflictKey{Account: m.Burn.From, Nonce: m.Burn.Nonce}, nil
	case TagMint:
		return ConflictKey{Slot: fmt.Sprintf("mint:%d", m.Mint.AuthorityNonce)}, nil
	case TagVerifyAgent:
		return ConflictKey{Slot: "config:agent:" + m.VerifyAgent.Account.String()}, nil
	case TagUpdateUsage:
		return ConflictKey{Slot: "config:agent:" + m.UpdateUsage.Account.String()}, nil
	case TagConfigureFees:
		return ConflictKey{Slot: "config:fee_params"}, nil
	case TagDeployImmutable:
		return ConflictKey{Slot: "config:immutable"}, nil
	default:
		return ConflictKey{}, ErrUnknownTag
	}
}

func putVar(buf []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func getVar(buf []byte) (field []byte, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, ErrFieldTooLarge
	}
	return buf[:n], buf[n:], nil
}

// Encode serializes the payload body (not including the header) in
// canonical form.
func (m *Mutation) Encode() ([]byte, error) {
	var buf []byte
	switch m.Tag {
	case TagTransfer:
		t := m.Transfer
		buf = append(buf, t.From[:]...)
		buf = append(buf, t.To[:]...)
		buf = append(buf, t.Amount.Bytes()...)
		var nonceBuf [8]byte
		binary.BigEndian.PutUint64(nonceBuf[:], t.Nonce)
		buf = append(buf, nonceBuf[:]...)
		buf = append(buf, t.FeeCommit.Bytes()...)
	case TagMint:
		mt := m.Mint
		buf = append(buf, mt.To[:]...)
		buf = append(buf, mt.Amount.Bytes()...)
		var nonceBuf [8]byte
		binary.BigEndian.PutUint64(nonceBuf[:], mt.AuthorityNonce)
		buf = append(buf, nonceBuf[:]...)
		buf = putVar(buf, mt.AuthoritySig)
	case TagBurn:
		b := m.Burn
		buf = append(buf, b.From[:]...)
		buf = append(buf, b.Amount.Bytes()...)
		var nonceBuf [8]byte
		binary.BigEndian.PutUint64(nonceBuf[:], b.Nonce)
		buf = append(buf, nonceBuf[:]...)
	case TagVerifyAgent:
		v := m.VerifyAgent
		buf = append(buf, v.Account[:]...)
		buf = append(buf, v.ProofDigest[:]...)
	case TagUpdateUsage:
		u := m.UpdateUsage
		buf = append(buf, u.Account[:]...)
		var usageBuf [8]byte
		binary.BigEndian.PutUint64(usageBuf[:], u.MonthlyRuv)
		buf = append(buf, usageBuf[:]...)
	case TagConfigureFees:
		c := m.ConfigureFees
		buf = putVar(buf, c.Params)
		buf = putVar(buf, c.AuthoritySig)
	case TagDeployImmutable:
		d := m.DeployImmutable
		var graceBuf [8]byte
		binary.BigEndian.PutUint64(graceBuf[:], d.GraceSeconds)
		buf = append(buf, graceBuf[:]...)
		buf = putVar(buf, d.AuthoritySig)
	default:
		return nil, ErrUnknownTag
	}
	return buf, nil
}

// Decode parses a payload body previously produced by Encode for the given
// tag.
func Decode(tag Tag, body []byte) (*Mutation, error) {
	m := &Mutation{Tag: tag}
	switch tag {
	case TagTransfer:
		if len(body) < 32+32+16+8+16 {
			return nil, ErrTruncated
		}
		t := &Transfer{}
		copy(t.From[:], body[:32])
		body = body[32:]
		copy(t.To[:], body[:32])
		body = body[32:]
		amt, err := amount.U128FromBytes(body[:16])
		if err != nil {
			return nil, err
		}
		t.Amount = amt
		body = body[16:]
		t.Nonce = binary.BigEndian.Uint64(body[:8])
		body = body[8:]
		fee, err := amount.U128FromBytes(body[:16])
		if err != nil {
			return nil, err
		}
		t.FeeCommit = fee
		m.Transfer = t
	case TagMint:
		if len(body) < 32+16+8 {
			return nil, ErrTruncated
		}
		mt := &Mint{}
		copy(mt.To[:], body[:32])
		body = body[32:]
		amt, err := amount.U128FromBytes(body[:16])
		if err != nil {
			return nil, err
		}
		mt.Amount = amt
		body = body[16:]
		mt.AuthorityNonce = binary.BigEndian.Uint64(body[:8])
		body = body[8:]
		sig, _, err := getVar(body)
		if err != nil {
			return nil, err
		}
		mt.AuthoritySig = sig
		m.Mint = mt
	case TagBurn:
		if len(body) < 32+16+8 {
			return nil, ErrTruncated
		}
		b := &Burn{}
		copy(b.From[:], body[:32])
		body = body[32:]
		amt, err := amount.U128FromBytes(body[:16])
		if err != nil {
			return nil, err
		}
		b.Amount = amt
		body = body[16:]
		b.Nonce = binary.BigEndian.Uint64(body[:8])
		m.Burn = b
	case TagVerifyAgent:
		if len(body) != 32+32 {
			return nil, ErrWrongDigestSize
		}
		v := &VerifyAgent{}
		copy(v.Account[:], body[:32])
		copy(v.ProofDigest[:], body[32:64])
		m.VerifyAgent = v
	case TagUpdateUsage:
		if len(body) != 32+8 {
			return nil, ErrTruncated
		}
		u := &UpdateUsage{}
		copy(u.Account[:], body[:32])
		u.MonthlyRuv = binary.BigEndian.Uint64(body[32:40])
		m.UpdateUsage = u
	case TagConfigureFees:
		params, rest, err := getVar(body)
		if err != nil {
			return nil, err
		}
		sig, _, err := getVar(rest)
		if err != nil {
			return nil, err
		}
		m.ConfigureFees = &ConfigureFees{Params: params, AuthoritySig: sig}
	case TagDeployImmutable:
		if len(body) < 8 {
			return nil, ErrTruncated
		}
		grace := binary.BigEndian.Uint64(body[:8])
		sig, _, err := getVar(body[8:])
		if err != nil {
			return nil, err
		}
		m.DeployImmutable = &DeployImmutable{GraceSeconds: grace, AuthoritySig: sig}
	default:
		return nil, ErrUnknownTag
	}
	return m, nil
}
