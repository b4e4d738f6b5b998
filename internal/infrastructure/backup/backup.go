// Package backup respaldo comprimido (JSON + zstd) que se toma antes de un reset de escuela.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

var _ inventory.BackupWriter = (*FileStore)(nil)

// ErrInvalidRef referencia que no apunta a un respaldo dentro del directorio base.
var ErrInvalidRef = errors.New("referencia de respaldo inválida")

const fileExt = ".json.zst"

// FileStore guarda respaldos en {dir}/{tenant}/{escuela}/reset-{fecha}-{id}.json.zst.
// La referencia devuelta es la ruta relativa al directorio base.
type FileStore struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// NewFileStore crea el directorio base si no existe.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("directorio de respaldos vacío")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("crear directorio de respaldos: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &FileStore{dir: dir, encoder: encoder, decoder: decoder, now: time.Now}, nil
}

// Write serializa y comprime el snapshot. El archivo se escribe primero con nombre temporal
// y se renombra, de modo que nunca queda un respaldo a medias con el nombre final.
func (s *FileStore) Write(ctx context.Context, snap *entity.ResetSnapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("snapshot nulo")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !safeSegment(snap.TenantID) || !safeSegment(snap.SchoolID) {
		return "", fmt.Errorf("%w: tenant o escuela", ErrInvalidRef)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("serializar respaldo: %w", err)
	}
	compressed := s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	name := fmt.Sprintf("reset-%s-%s%s", s.now().UTC().Format("20060102T150405Z"), uuid.NewString(), fileExt)
	ref := filepath.ToSlash(filepath.Join(snap.TenantID, snap.SchoolID, name))
	full := filepath.Join(s.dir, snap.TenantID, snap.SchoolID, name)

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("crear directorio de respaldo: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o640); err != nil {
		return "", fmt.Errorf("escribir respaldo: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("confirmar respaldo: %w", err)
	}
	return ref, nil
}

// Discard borra un respaldo huérfano. Una referencia inexistente no es error.
func (s *FileStore) Discard(_ context.Context, ref string) error {
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("descartar respaldo: %w", err)
	}
	return nil
}

// Read recupera el snapshot de una referencia.
func (s *FileStore) Read(_ context.Context, ref string) (*entity.ResetSnapshot, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	compressed, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("leer respaldo: %w", err)
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("descomprimir respaldo: %w", err)
	}
	var snap entity.ResetSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decodificar respaldo: %w", err)
	}
	return &snap, nil
}

// resolve ruta absoluta de ref, rechazando cualquier cosa fuera del directorio base.
func (s *FileStore) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if ref == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") || !strings.HasSuffix(clean, fileExt) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.dir, clean), nil
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
