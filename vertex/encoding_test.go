package vertex

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/sign"

	"github.com/qudag/qudag/amount"
	"github.com/qudag/qudag/ids"
	"github.com/qudag/qudag/mutation"
	"github.com/qudag/qudag/primitives"
)

func buildSignedVertex(t *testing.T) (*Vertex, []byte) {
	t.Helper()
	pub, sk, err := sign.GenerateKey(rand.Reader)
	require.NoError(t, err)

	v := &Vertex{
		Parents: []ids.VertexID{GenesisID},
		Payload: &mutation.Mutation{Tag: mutation.TagTransfer, Transfer: &mutation.Transfer{
			From:      ids.AccountID{0x01},
			To:        ids.AccountID{0x02},
			Amount:    amount.U128FromUint64(1000),
			Nonce:     0,
			FeeCommit: amount.U128FromUint64(1),
		}},
		CreationTime: time.Unix(1700000000, 0).UTC(),
		Height:       1,
	}
	copy(v.Creator[:], pub[:])

	headerAndBody, err := EncodeHeaderAndBody(v)
	require.NoError(t, err)

	s := primitives.NaClSigner{}
	sig, err := s.Sign(sk[:], headerAndBody)
	require.NoError(t, err)
	v.CreatorSignature = sig

	hasher := primitives.Blake2bHasher{}
	id, err := ComputeID(hasher, v)
	require.NoError(t, err)
	v.ID = id

	return v, pub[:]
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v, _ := buildSignedVertex(t)
	encoded, err := Encode(v)
	require.NoError(t, err)

	hasher := primitives.Blake2bHasher{}
	decoded, err := Decode(hasher, encoded)
	require.NoError(t, err)

	require.Equal(t, v.ID, decoded.ID)
	require.Equal(t, v.Parents, decoded.Parents)
	require.Equal(t, v.Creator, decoded.Creator)
	require.Equal(t, v.CreatorSignature, decoded.CreatorSignature)
	require.Equal(t, v.Payload.Tag, decoded.Payload.Tag)
	require.Equal(t, v.Payload.Transfer.From, decoded.Payload.Transfer.From)
	require.True(t, v.CreationTime.Equal(decoded.CreationTime))
}

func TestVerifySignatureAccepts(t *testing.T) {
	v, pub := buildSignedVertex(t)
	ok, err := VerifySignature(primitives.NaClSigner{}, v, pub)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifySignatureRejectsTamperedPayload(t *testing.T) {
	v, pub := buildSignedVertex(t)
	v.Payload.Transfer.Amount = amount.U128FromUint64(999999)
	ok, err := VerifySignature(primitives.NaClSigner{}, v, pub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	v, _ := buildSignedVertex(t)
	encoded, err := Encode(v)
	require.NoError(t, err)
	encoded[0] = 0xff

	_, err = Decode(primitives.Blake2bHasher{}, encoded)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	_, err := Decode(primitives.Blake2bHasher{}, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrHeaderTooShort)
}
