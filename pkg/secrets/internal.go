package secrets

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// InternalProvider keeps secrets encrypted in a database.
// Supported database types: sqlite, postgres, mysql.
type InternalProvider struct {
	db     *sql.DB
	key    []byte
	dbType string
}

// NewInternalProvider opens (or creates) the secrets store behind the
// connection string. The database type is derived from the string shape.
func NewInternalProvider(conn string, key []byte) (*InternalProvider, error) {
	dbType := func(c string) (string, error) {
		if strings.HasPrefix(c, "postgres://") {
			return "postgres", nil
		}
		if strings.Contains(c, "@tcp(") {
			return "mysql", nil
		}
		if strings.HasPrefix(c, "file:/") || strings.HasSuffix(c, ".sqlite") || strings.HasSuffix(c, ".db") {
			return "sqlite", nil
		}
		return "", fmt.Errorf("unsupported database type in connection string")
	}

	dbt, err := dbType(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}

	db, err := sql.Open(dbt, conn)
	if err != nil {
		return nil, fmt.Errorf("error opening secrets database: %w", err)
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS soratab_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT);`); err != nil {
		return nil, err
	}
	log.Printf("[INFO] secrets provider: using %s database, type: %s", conn, dbt)
	return &InternalProvider{db: db, dbType: dbt, key: key}, nil
}

// Get retrieves a secret from the database and decrypts it.
func (p *InternalProvider) Get(key string) (string, error) {
	loadStmt := "SELECT sval FROM soratab_secrets WHERE skey = ?"
	if p.dbType == "postgres" {
		loadStmt = "SELECT sval FROM soratab_secrets WHERE skey = $1"
	}

	var encrypted []byte
	if err := p.db.QueryRow(loadStmt, key).Scan(&encrypted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.New("secret not found")
		}
		return "", err
	}

	decrypted, err := p.decrypt(string(encrypted))
	if err != nil {
		return "", fmt.Errorf("can't get secret for %s: %w", key, err)
	}
	return decrypted, nil
}

// Set encrypts a secret and stores it in the database, replacing an existing
// value for the same key.
func (p *InternalProvider) Set(key, value string) error {
	encrypted, err := p.encrypt(value)
	if err != nil {
		return fmt.Errorf("can't set secret for %s: %w", key, err)
	}

	var insertStmt string
	switch p.dbType {
	case "sqlite":
		insertStmt = "INSERT OR REPLACE INTO soratab_secrets (skey, sval) VALUES ($1, $2)"
	case "postgres":
		insertStmt = "INSERT INTO soratab_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = $2;"
	case "mysql":
		insertStmt = "REPLACE INTO soratab_secrets (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type: %s", p.dbType)
	}

	if _, err = p.db.Exec(insertStmt, key, encrypted); err != nil {
		return fmt.Errorf("error inserting secret: %w", err)
	}
	return nil
}

// Delete removes a secret from the database.
func (p *InternalProvider) Delete(key string) error {
	deleteStmt := "DELETE FROM soratab_secrets WHERE skey = ?"
	if p.dbType == "postgres" {
		deleteStmt = "DELETE FROM soratab_secrets WHERE skey = $1"
	}

	res, err := p.db.Exec(deleteStmt, key)
	if err != nil {
		return fmt.Errorf("error deleting secret for %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("key not found in the database: %s", key)
	}
	return nil
}

// List returns secret keys, optionally filtered by prefix.
func (p *InternalProvider) List(prefix string) ([]string, error) {
	var rows *sql.Rows
	var err error

	listStmt := "SELECT skey FROM soratab_secrets"
	if prefix != "*" && prefix != "" {
		if p.dbType == "postgres" {
			listStmt += " WHERE skey LIKE $1"
		} else {
			listStmt += " WHERE skey LIKE ?"
		}
		rows, err = p.db.Query(listStmt, prefix+"%")
	} else {
		rows, err = p.db.Query(listStmt)
	}
	if err != nil {
		return nil, fmt.Errorf("error listing secrets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning secret keys: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error retrieving secret keys: %w", err)
	}
	return keys, nil
}

// encrypt seals data with nacl secretbox. The random 24-byte nonce and
// 16-byte salt are prepended to the sealed bytes, the whole thing is base64.
func (p *InternalProvider) encrypt(data string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	keyBytes := deriveKey(p.key, salt)
	naclKey := new([32]byte)
	copy(naclKey[:], keyBytes)

	nonce := new([24]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	out := make([]byte, 24+16)
	copy(out, nonce[:])
	copy(out[24:], salt)

	sealed := secretbox.Seal(out, []byte(data), nonce, naclKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt: base64 decode, split nonce and salt, re-derive
// the key and open the box.
func (p *InternalProvider) decrypt(encodedData string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encodedData)
	if err != nil {
		return "", err
	}
	if len(sealed) < 40 {
		return "", errors.New("encrypted data too short")
	}

	nonce := new([24]byte)
	copy(nonce[:], sealed[:24])

	salt := sealed[24:40]
	keyBytes := deriveKey(p.key, salt)
	naclKey := new([32]byte)
	copy(naclKey[:], keyBytes)

	decrypted, ok := secretbox.Open(nil, sealed[40:], nonce, naclKey)
	if !ok {
		return "", errors.New("failed to decrypt")
	}
	return string(decrypted), nil
}

// deriveKey stretches the user key with argon2id, 32 bytes out.
func deriveKey(key, salt []byte) []byte {
	return argon2.IDKey(key, salt, 1, 64*1024, 4, 32)
}
