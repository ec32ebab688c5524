package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// VaultEntryRefreshToken names the auth refresh token entry used to resume a
// session after a restart without re-prompting for credentials.
const VaultEntryRefreshToken = "auth_refresh_token"

// Vault stores small secrets in the local database, encrypted at rest with
// an argon2id-derived AES-256-GCM key. Blob layout: salt, nonce, ciphertext.
type Vault struct {
	db         *sql.DB
	passphrase string
}

func NewVault(db *sql.DB, passphrase string) *Vault {
	return &Vault{db: db, passphrase: passphrase}
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Put encrypts plaintext and upserts it under name.
func (v *Vault) Put(name string, plaintext []byte) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(v.passphrase, salt))
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, nil)

	if _, err := v.db.Exec(
		`INSERT INTO credential_vault (name, ciphertext, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		name, blob,
	); err != nil {
		return fmt.Errorf("store vault entry %q: %w", name, err)
	}
	return nil
}

// Get decrypts the entry stored under name. Missing entries return nil with
// no error; a wrong passphrase fails authentication and returns an error.
func (v *Vault) Get(name string) ([]byte, error) {
	var blob []byte
	err := v.db.QueryRow(`SELECT ciphertext FROM credential_vault WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vault entry %q: %w", name, err)
	}

	if len(blob) < saltSize+nonceSize {
		return nil, fmt.Errorf("vault entry %q too small", name)
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(v.passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt vault entry %q: %w", name, err)
	}
	return plaintext, nil
}

// Delete removes the entry stored under name.
func (v *Vault) Delete(name string) error {
	if _, err := v.db.Exec(`DELETE FROM credential_vault WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete vault entry %q: %w", name, err)
	}
	return nil
}
