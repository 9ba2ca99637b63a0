package database

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxDifficulty is the largest difficulty that can be satisfied by a
// 32 byte hash. A difficulty of 256 would require the whole hash to be zero.
const MaxDifficulty = HashLength*8 - 1

// =============================================================================

// Block represents one unit of the chain. A block is never mutated once it
// has been created by mining or received from the canonical node.
type Block struct {
	Number     uint64 // Position in the chain, 0 for genesis.
	TimeStamp  uint64 // Time the block was mined in seconds.
	Difficulty uint32 // Number of leading zero bits required in the hash.
	Nonce      uint64 // Value identified to solve the hash solution.
	Payload    []byte // Opaque application data.
	Hash       Hash   // Digest of this block.
	PrevHash   Hash   // Digest of the previous block in the chain.
}

// Digest recomputes the digest of the block from its own fields.
func (b Block) Digest() Hash {
	return Digest(b.TimeStamp, b.Payload, b.PrevHash, b.Difficulty, b.Nonce)
}

// Digest returns the SHA-256 hash of the block preimage. The preimage layout
// is fixed. Changing it invalidates every block ever mined.
func Digest(timeStamp uint64, payload []byte, prevHash Hash, difficulty uint32, nonce uint64) Hash {
	return sha256.Sum256(preimage(timeStamp, payload, prevHash, difficulty, nonce))
}

// preimage lays out the hashed bytes as
// timestamp(8) | payload | prev hash(32) | difficulty(4) | nonce(8)
// with every integer in big endian. The nonce is last so the miner can
// rewrite it in place.
func preimage(timeStamp uint64, payload []byte, prevHash Hash, difficulty uint32, nonce uint64) []byte {
	buf := make([]byte, 0, 8+len(payload)+HashLength+4+8)
	buf = binary.BigEndian.AppendUint64(buf, timeStamp)
	buf = append(buf, payload...)
	buf = append(buf, prevHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, difficulty)
	buf = binary.BigEndian.AppendUint64(buf, nonce)

	return buf
}

// IsHashSolved checks the hash to make sure it complies with the POW rules.
// The first difficulty/8 bytes must be zero and the top difficulty%8 bits of
// the next byte must be zero.
func IsHashSolved(difficulty uint32, hash Hash) bool {
	if difficulty > MaxDifficulty {
		return false
	}

	full := difficulty / 8
	for _, b := range hash[:full] {
		if b != 0 {
			return false
		}
	}

	remaining := difficulty % 8
	if remaining == 0 {
		return true
	}

	leftover := byte(255) >> remaining
	return hash[full] <= leftover
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Difficulty uint32
	PrevBlock  Block
	TimeStamp  uint64
	Payload    []byte
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	timeStamp := args.TimeStamp
	if timeStamp == 0 {
		timeStamp = uint64(time.Now().UTC().Unix())
	}

	payload := make([]byte, len(args.Payload))
	copy(payload, args.Payload)

	hash, nonce, err := Mine(ctx, timeStamp, payload, args.PrevBlock.Hash, args.Difficulty, ev)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Number:     args.PrevBlock.Number + 1,
		TimeStamp:  timeStamp,
		Difficulty: args.Difficulty,
		Nonce:      nonce,
		Payload:    payload,
		Hash:       hash,
		PrevHash:   args.PrevBlock.Hash,
	}

	return nb, nil
}

// Mine searches for the first nonce, counting up from zero, that produces a
// digest satisfying the difficulty. The context is checked between attempts
// so a search can be cancelled.
func Mine(ctx context.Context, timeStamp uint64, payload []byte, prevHash Hash, difficulty uint32, ev func(v string, args ...any)) (Hash, uint64, error) {
	if difficulty > MaxDifficulty {
		return Hash{}, 0, ErrInvalidDifficulty
	}

	ev("database: Mine: MINING: started: difficulty[%d]", difficulty)
	defer ev("database: Mine: MINING: completed")

	buf := preimage(timeStamp, payload, prevHash, difficulty, 0)
	nonceAt := len(buf) - 8

	var nonce uint64
	for {
		if ctx.Err() != nil {
			ev("database: Mine: MINING: CANCELLED: attempts[%d]", nonce)
			return Hash{}, 0, ctx.Err()
		}

		binary.BigEndian.PutUint64(buf[nonceAt:], nonce)
		hash := Hash(sha256.Sum256(buf))
		if IsHashSolved(difficulty, hash) {
			ev("database: Mine: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: nonce[%d]", prevHash, hash, nonce)
			return hash, nonce, nil
		}

		nonce++
		if nonce == 0 {
			return Hash{}, 0, ErrNonceExhausted
		}

		if nonce%1_000_000 == 0 {
			ev("database: Mine: MINING: attempts[%d]", nonce)
		}
	}
}

// =============================================================================

// ValidateBlock takes a block and validates it to be the next block after
// the specified previous block.
func (b Block) ValidateBlock(previousBlock Block, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Number)

	nextNumber := previousBlock.Number + 1
	if b.Number != nextNumber {
		return newValidationError(b.Number, KindSequence, "got %d, exp %d", b.Number, nextNumber)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Number)

	if b.PrevHash != previousBlock.Hash {
		return newValidationError(b.Number, KindLinkage, "got %s, exp %s", b.PrevHash, previousBlock.Hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches its digest and has been solved", b.Number)

	return b.ValidateWork()
}

// ValidateWork checks what a block proves about itself: the difficulty is in
// range, the hash is the digest of the header and the hash meets the
// difficulty. It needs no other block.
func (b Block) ValidateWork() error {
	if b.Difficulty > MaxDifficulty {
		return newValidationError(b.Number, KindDifficulty, "difficulty %d, max %d", b.Difficulty, MaxDifficulty)
	}

	if digest := b.Digest(); digest != b.Hash {
		return newValidationError(b.Number, KindHashMismatch, "got %s, exp %s", b.Hash, digest)
	}

	if !IsHashSolved(b.Difficulty, b.Hash) {
		return newValidationError(b.Number, KindProofOfWork, "%s does not have %d leading zero bits", b.Hash, b.Difficulty)
	}

	return nil
}

// Valid is the boolean form of ValidateBlock.
func (b Block) Valid(previousBlock Block) bool {
	return b.ValidateBlock(previousBlock, nil) == nil
}

// ValidateGenesis validates a block that has no predecessor. The genesis
// block is exempt from linkage but its digest must still be consistent.
func ValidateGenesis(b Block) error {
	if b.Number != 0 {
		return newValidationError(b.Number, KindSequence, "genesis must be block 0")
	}

	if !b.PrevHash.IsZero() {
		return newValidationError(b.Number, KindLinkage, "genesis parent hash must be zero, got %s", b.PrevHash)
	}

	return b.ValidateWork()
}

// ValidateChain validates a contiguous run of blocks. When the first block
// is genesis it is validated on its own, otherwise the run is only checked
// pairwise. The index of the first failing block is returned, or -1.
func ValidateChain(blocks []Block) (int, error) {
	if len(blocks) == 0 {
		return -1, nil
	}

	if blocks[0].Number == 0 {
		if err := ValidateGenesis(blocks[0]); err != nil {
			return 0, err
		}
	}

	for i := 1; i < len(blocks); i++ {
		if err := blocks[i].ValidateBlock(blocks[i-1], nil); err != nil {
			return i, err
		}
	}

	return -1, nil
}

// =============================================================================

// BlockData represents what is serialized to storage and sent over the wire.
type BlockData struct {
	Number     uint64        `json:"number"`
	TimeStamp  uint64        `json:"timestamp"`
	Difficulty uint32        `json:"difficulty"`
	Nonce      uint64        `json:"nonce"`
	Payload    hexutil.Bytes `json:"payload"`
	Hash       Hash          `json:"hash"`
	PrevHash   Hash          `json:"prev_hash"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Number:     block.Number,
		TimeStamp:  block.TimeStamp,
		Difficulty: block.Difficulty,
		Nonce:      block.Nonce,
		Payload:    hexutil.Bytes(block.Payload),
		Hash:       block.Hash,
		PrevHash:   block.PrevHash,
	}
}

// ToBlock converts a BlockData into a Block.
func ToBlock(blockData BlockData) Block {
	payload := make([]byte, len(blockData.Payload))
	copy(payload, blockData.Payload)

	return Block{
		Number:     blockData.Number,
		TimeStamp:  blockData.TimeStamp,
		Difficulty: blockData.Difficulty,
		Nonce:      blockData.Nonce,
		Payload:    payload,
		Hash:       blockData.Hash,
		PrevHash:   blockData.PrevHash,
	}
}

// Marshal encodes the block for storage or broadcast.
func Marshal(block Block) ([]byte, error) {
	return json.Marshal(NewBlockData(block))
}

// Unmarshal decodes a block produced by Marshal.
func Unmarshal(data []byte) (Block, error) {
	var blockData BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}
