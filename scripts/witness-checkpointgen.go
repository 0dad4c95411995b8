package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/settlement-hub/settlement-hub/internal/witness/protocol"
)

type options struct {
	checkpointID string
	ledgerID     string
	sequence     int64
	entryHash    string
	attestor     string
	attestedAt   string
	privateKey   string
}

func main() {
	var opt options

	flag.StringVar(&opt.checkpointID, "checkpoint-id", "", "checkpoint identifier; auto-generated when empty")
	flag.StringVar(&opt.ledgerID, "ledger-id", "smoke-ledger", "ledger identifier")
	flag.Int64Var(&opt.sequence, "sequence", 1, "attested ledger sequence")
	flag.StringVar(&opt.entryHash, "entry-hash", "", "hex entry hash at the attested sequence")
	flag.StringVar(&opt.attestor, "attestor", "smoke", "attestor identifier")
	flag.StringVar(&opt.attestedAt, "attested-at", "", "RFC3339 timestamp; default now UTC")
	flag.StringVar(&opt.privateKey, "private-key", "", "base64 private key (32-byte seed or 64-byte private key); default random")
	flag.Parse()

	if strings.TrimSpace(opt.entryHash) == "" {
		log.Fatal("entry-hash is required")
	}

	privateKey, err := loadPrivateKey(opt.privateKey)
	if err != nil {
		log.Fatal(err)
	}
	ts, err := parseTimestamp(opt.attestedAt)
	if err != nil {
		log.Fatal(err)
	}

	checkpointID := strings.TrimSpace(opt.checkpointID)
	if checkpointID == "" {
		checkpointID = fmt.Sprintf("cp-%d", ts.UnixNano())
	}
	cp := protocol.Checkpoint{
		CheckpointID: checkpointID,
		LedgerID:     strings.TrimSpace(opt.ledgerID),
		Sequence:     opt.sequence,
		EntryHash:    strings.TrimSpace(opt.entryHash),
		AttestedAt:   ts,
		Attestor:     strings.TrimSpace(opt.attestor),
	}
	if err := cp.Sign(privateKey); err != nil {
		log.Fatal(err)
	}

	out, err := json.Marshal(cp)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = os.Stdout.Write(out)
}

func parseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid attested-at: %w", err)
	}
	return parsed.UTC(), nil
}

func loadPrivateKey(raw string) (ed25519.PrivateKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private-key base64: %w", err)
	}
	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("invalid private-key length: %d (expected 32 or 64 bytes)", len(decoded))
	}
}
