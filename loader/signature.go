package loader

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/wippyai/brainsim/errors"
)

const (
	// SignatureSection names the custom section holding the code signature.
	SignatureSection = ".code_signature"

	// SignatureMagic is "XVX5" read as a little-endian u32.
	SignatureMagic uint32 = 0x35585658

	// SignatureSize is the encoded size of a code signature.
	SignatureSize = 32

	// LoadAddress is where user programs are linked on the brain.
	LoadAddress uint32 = 0x03800000
)

// ProgramType identifies the kind of program a signature describes.
type ProgramType uint32

const ProgramUser ProgramType = 0

// Owner identifies who signed the program.
type Owner uint32

const (
	OwnerSystem  Owner = 0
	OwnerVEX     Owner = 1
	OwnerPartner Owner = 2
)

func (o Owner) String() string {
	switch o {
	case OwnerSystem:
		return "system"
	case OwnerVEX:
		return "vex"
	case OwnerPartner:
		return "partner"
	default:
		return fmt.Sprintf("owner(%d)", uint32(o))
	}
}

// Options is the signature option bit set.
type Options uint32

const (
	OptionInvertGraphics Options = 1 << 0
	OptionKillThreads    Options = 1 << 1
	OptionThemedGraphics Options = 1 << 2
)

func (o Options) Has(bit Options) bool { return o&bit != 0 }

func (o Options) String() string {
	var parts []string
	if o.Has(OptionInvertGraphics) {
		parts = append(parts, "invert")
	}
	if o.Has(OptionKillThreads) {
		parts = append(parts, "kill_threads")
	}
	if o.Has(OptionThemedGraphics) {
		parts = append(parts, "themed")
	}
	if rest := o &^ (OptionInvertGraphics | OptionKillThreads | OptionThemedGraphics); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CodeSignature is the cold header that marks a binary as a V5 user program.
//
// Layout, little-endian u32 words:
//
//	0  magic
//	1  program type
//	2  owner
//	3  options
//	4-7 reserved, zero
type CodeSignature struct {
	Magic   uint32
	Type    ProgramType
	Owner   Owner
	Options Options
}

// ParseSignature decodes and validates a code signature. Trailing bytes
// beyond SignatureSize are ignored.
func ParseSignature(data []byte) (CodeSignature, error) {
	if len(data) < SignatureSize {
		return CodeSignature{}, errors.Signature("signature is %d bytes, need %d", len(data), SignatureSize)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[i*4:]) }

	sig := CodeSignature{
		Magic:   word(0),
		Type:    ProgramType(word(1)),
		Owner:   Owner(word(2)),
		Options: Options(word(3)),
	}
	if sig.Magic != SignatureMagic {
		return sig, errors.New(errors.PhaseValidate, errors.KindSignature).
			Path(SignatureSection, "magic").
			Value(sig.Magic).
			Detail("bad magic 0x%08x, want 0x%08x", sig.Magic, SignatureMagic).
			Build()
	}
	if sig.Type != ProgramUser {
		return sig, errors.Signature("unknown program type %d", uint32(sig.Type))
	}
	if sig.Owner > OwnerPartner {
		return sig, errors.Signature("unknown owner %d", uint32(sig.Owner))
	}
	for i := 4; i < 8; i++ {
		if word(i) != 0 {
			return sig, errors.Signature("reserved word %d is 0x%08x", i, word(i))
		}
	}
	return sig, nil
}

// Encode returns the 32-byte encoding of s.
func (s CodeSignature) Encode() []byte {
	out := make([]byte, SignatureSize)
	binary.LittleEndian.PutUint32(out[0:], s.Magic)
	binary.LittleEndian.PutUint32(out[4:], uint32(s.Type))
	binary.LittleEndian.PutUint32(out[8:], uint32(s.Owner))
	binary.LittleEndian.PutUint32(out[12:], uint32(s.Options))
	return out
}

// DefaultSignature is a valid user-program signature with no options set.
func DefaultSignature() CodeSignature {
	return CodeSignature{Magic: SignatureMagic, Type: ProgramUser, Owner: OwnerSystem}
}
