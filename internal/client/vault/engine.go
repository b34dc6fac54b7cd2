package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/cryptox"
	"github.com/dmitrijs2005/cryptchat/internal/filex"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	imagesDirName = "images"
	thumbsDirName = "thumbnails"
	manifestName  = "metadata.enc"
	stagingName   = ".rekey"
	commitMarker  = "COMMIT"

	imageExt    = ".enc"
	thumbSuffix = "_thumb.enc"
	filePerm    = 0o600
	exportPerm  = 0o644
)

// ErrOrphanedContent is returned when a first password is set over vault
// files sealed under an earlier, lost credential.
var ErrOrphanedContent = errors.New("vault holds content from a previous password")

// Engine manages vault files under a root directory. Reads take a shared
// lock; writes and re-keying take it exclusively.
type Engine struct {
	mu sync.RWMutex

	root         string
	imagesDir    string
	thumbsDir    string
	manifestPath string
	stagingDir   string

	passwords *PasswordManager
	bio       *BiometricBridge
	thumbnail Thumbnailer
	logger    logging.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

func WithThumbnailer(t Thumbnailer) Option {
	return func(e *Engine) { e.thumbnail = t }
}

func WithBiometric(b *BiometricBridge) Option {
	return func(e *Engine) { e.bio = b }
}

// NewEngine prepares root and completes or rolls back any password change
// that was interrupted.
func NewEngine(ctx context.Context, root string, passwords *PasswordManager, logger logging.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{
		root:         root,
		imagesDir:    filepath.Join(root, imagesDirName),
		thumbsDir:    filepath.Join(root, thumbsDirName),
		manifestPath: filepath.Join(root, manifestName),
		stagingDir:   filepath.Join(root, stagingName),
		passwords:    passwords,
		thumbnail:    MakeThumbnail,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.ensureDirs(); err != nil {
		return nil, err
	}
	if err := e.recover(ctx); err != nil {
		return nil, fmt.Errorf("recover vault: %w", err)
	}
	return e, nil
}

func (e *Engine) ensureDirs() error {
	for _, d := range []string{e.root, e.imagesDir, e.thumbsDir} {
		if _, err := filex.EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) imagePath(id string) string { return filepath.Join(e.imagesDir, id+imageExt) }
func (e *Engine) thumbPath(id string) string { return filepath.Join(e.thumbsDir, id+thumbSuffix) }

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("image %q: %w", id, common.ErrNotFound)
	}
	return nil
}

func (e *Engine) loadManifest(key []byte) ([]Image, error) {
	raw, err := os.ReadFile(e.manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var images []Image
	if err := cryptox.OpenEntry(raw, key, &images); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return images, nil
}

func saveManifest(path string, images []Image, key []byte) error {
	if images == nil {
		images = []Image{}
	}
	sealed, err := cryptox.SealEntry(images, key)
	if err != nil {
		return err
	}
	return filex.AtomicWriteFile(path, sealed, filePerm)
}

func writeSealed(path string, plaintext, key []byte) error {
	sealed, err := cryptox.SealBlob(plaintext, key)
	if err != nil {
		return err
	}
	return filex.AtomicWriteFile(path, sealed, filePerm)
}

func readSealed(path string, key []byte) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return cryptox.OpenBlob(raw, key)
}

func (e *Engine) removeFiles(id string) error {
	return errors.Join(
		filex.RemoveIfExists(e.imagePath(id)),
		filex.RemoveIfExists(e.thumbPath(id)),
	)
}

// AddImage encrypts data and its thumbnail under the vault key and records
// the entry in the manifest.
func (e *Engine) AddImage(ctx context.Context, data []byte, password, fileName string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.passwords.unlock(ctx, password)
	if err != nil {
		return Image{}, err
	}
	defer common.WipeByteArray(key)

	thumb, err := e.thumbnail(data)
	if err != nil {
		return Image{}, err
	}
	images, err := e.loadManifest(key)
	if err != nil {
		return Image{}, err
	}

	fileName = cleanFileName(fileName)
	id := e.newID()
	img := Image{
		ID:            id,
		FileName:      fileName,
		AddedAt:       e.now().UTC(),
		EncryptedPath: e.imagePath(id),
		ThumbnailPath: e.thumbPath(id),
	}

	err = writeSealed(img.EncryptedPath, data, key)
	if err == nil {
		err = writeSealed(img.ThumbnailPath, thumb, key)
	}
	if err == nil {
		err = saveManifest(e.manifestPath, append(images, img), key)
	}
	if err != nil {
		_ = e.removeFiles(id)
		return Image{}, fmt.Errorf("add image: %w", err)
	}

	e.logger.Info(ctx, "image added", "image_id", id, "size", len(data))
	return img, nil
}

// GetAllImages lists entries by scanning the images directory and pairing
// each image with its thumbnail. It needs no password; FileName is the
// on-disk name and AddedAt the file modification time. Newest first.
func (e *Engine) GetAllImages(ctx context.Context) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, err := os.ReadDir(e.imagesDir)
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, imageExt) {
			continue
		}
		id := strings.TrimSuffix(name, imageExt)
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		thumb := e.thumbPath(id)
		if !filex.Exists(thumb) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		images = append(images, Image{
			ID:            id,
			FileName:      name,
			AddedAt:       info.ModTime().UTC(),
			EncryptedPath: filepath.Join(e.imagesDir, name),
			ThumbnailPath: thumb,
		})
	}
	sortNewestFirst(images)
	return images, nil
}

// ListImages returns the manifest entries whose image file still exists,
// newest first.
func (e *Engine) ListImages(ctx context.Context, password string) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	key, err := e.passwords.unlock(ctx, password)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	all, err := e.loadManifest(key)
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(all))
	for _, img := range all {
		if filex.Exists(e.imagePath(img.ID)) {
			images = append(images, img)
		}
	}
	sortNewestFirst(images)
	return images, nil
}

// cleanFileName keeps only the last path element and drops names that
// would resolve outside an export directory.
func cleanFileName(name string) string {
	if name == "" {
		return ""
	}
	name = filepath.Base(name)
	switch name {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return name
}

func sortNewestFirst(images []Image) {
	sort.SliceStable(images, func(i, j int) bool { return images[i].AddedAt.After(images[j].AddedAt) })
}

func (e *Engine) readFile(ctx context.Context, id, password string, path func(string) string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	key, err := e.passwords.unlock(ctx, password)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)
	return readSealed(path(id), key)
}

// GetImageData returns the decrypted original image.
func (e *Engine) GetImageData(ctx context.Context, id, password string) ([]byte, error) {
	return e.readFile(ctx, id, password, e.imagePath)
}

// GetThumbnailData returns the decrypted JPEG thumbnail.
func (e *Engine) GetThumbnailData(ctx context.Context, id, password string) ([]byte, error) {
	return e.readFile(ctx, id, password, e.thumbPath)
}

// DeleteImage removes the image and thumbnail files. Missing files are not
// an error. The manifest entry stays until the next password-bearing write
// and is hidden by ListImages meanwhile.
func (e *Engine) DeleteImage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.removeFiles(id); err != nil {
		return err
	}
	e.logger.Info(ctx, "image deleted", "image_id", id)
	return nil
}

// DeleteImageWithPassword removes the files and the manifest entry. The
// manifest is read first so an unreadable one leaves the files in place.
func (e *Engine) DeleteImageWithPassword(ctx context.Context, id, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.passwords.unlock(ctx, password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	images, err := e.loadManifest(key)
	if err != nil {
		return err
	}
	if err := e.removeFiles(id); err != nil {
		return err
	}
	kept := images[:0]
	for _, img := range images {
		if img.ID != id && filex.Exists(e.imagePath(img.ID)) {
			kept = append(kept, img)
		}
	}
	if err := saveManifest(e.manifestPath, kept, key); err != nil {
		return err
	}
	e.logger.Info(ctx, "image deleted", "image_id", id)
	return nil
}

// ExportImage writes the decrypted image into destDir without overwriting
// existing files and returns the path written. The vault copy is kept.
func (e *Engine) ExportImage(ctx context.Context, id, password, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validID(id); err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	key, err := e.passwords.unlock(ctx, password)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	data, err := readSealed(e.imagePath(id), key)
	if err != nil {
		return "", err
	}

	name := id + extensionFor(data)
	if images, err := e.loadManifest(key); err == nil {
		for _, img := range images {
			if img.ID == id && img.FileName != "" {
				name = img.FileName
				break
			}
		}
	}

	if _, err := filex.EnsureDir(destDir); err != nil {
		return "", err
	}
	path, err := writeNoClobber(destDir, name, data, exportPerm)
	if err != nil {
		return "", err
	}
	e.logger.Info(ctx, "image exported", "image_id", id)
	return path, nil
}

// MoveOut exports the image and then deletes it from the vault.
func (e *Engine) MoveOut(ctx context.Context, id, password, destDir string) (string, error) {
	path, err := e.ExportImage(ctx, id, password, destDir)
	if err != nil {
		return "", err
	}
	if err := e.DeleteImageWithPassword(ctx, id, password); err != nil {
		return path, fmt.Errorf("exported to %s but delete failed: %w", path, err)
	}
	return path, nil
}

func writeNoClobber(dir, name string, data []byte, perm os.FileMode) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			_ = os.Remove(p)
			return "", err
		}
		return p, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// ChangePassword re-encrypts every vault file under a key derived from
// newPassword. Files are staged first; the live tree and the credential are
// only switched once everything is staged. An interruption before the
// switch leaves the vault on the old password; after it NewEngine finishes
// the switch.
func (e *Engine) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	oldKey, err := e.passwords.unlock(ctx, oldPassword)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(oldKey)

	newSalt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	newKey := cryptox.DeriveVaultKey([]byte(newPassword), newSalt)
	defer common.WipeByteArray(newKey)

	n, err := e.stage(ctx, oldKey, newKey)
	if err != nil {
		_ = os.RemoveAll(e.stagingDir)
		return fmt.Errorf("re-encrypt vault: %w", err)
	}
	if err := e.passwords.stagePending(ctx, newPassword, newSalt); err != nil {
		_ = os.RemoveAll(e.stagingDir)
		return err
	}
	if err := filex.AtomicWriteFile(filepath.Join(e.stagingDir, commitMarker), nil, filePerm); err != nil {
		_ = e.passwords.discardPending(ctx)
		_ = os.RemoveAll(e.stagingDir)
		return err
	}
	if err := e.commit(ctx); err != nil {
		return fmt.Errorf("commit password change: %w", err)
	}

	if e.bio != nil {
		if enabled, err := e.bio.IsEnabled(ctx); err == nil && enabled {
			if err := e.bio.SavePassword(ctx, newPassword); err != nil {
				e.logger.Warn(ctx, "biometric password not updated", "error", err)
			}
		}
	}
	e.logger.Info(ctx, "vault password changed", "files", n)
	return nil
}

// stage writes every file re-encrypted under newKey into the staging tree
// and returns how many files were processed.
func (e *Engine) stage(ctx context.Context, oldKey, newKey []byte) (int, error) {
	if err := os.RemoveAll(e.stagingDir); err != nil {
		return 0, err
	}

	type job struct{ src, dst string }
	var jobs []job
	for _, name := range []string{imagesDirName, thumbsDirName} {
		live := filepath.Join(e.root, name)
		staged := filepath.Join(e.stagingDir, name)
		if _, err := filex.EnsureDir(staged); err != nil {
			return 0, err
		}
		entries, err := os.ReadDir(live)
		if err != nil {
			return 0, err
		}
		for _, de := range entries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), imageExt) {
				continue
			}
			jobs = append(jobs, job{
				src: filepath.Join(live, de.Name()),
				dst: filepath.Join(staged, de.Name()),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := os.ReadFile(j.src)
			if err != nil {
				return err
			}
			plaintext, err := cryptox.OpenBlob(raw, oldKey)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(j.src), err)
			}
			defer common.WipeByteArray(plaintext)
			return writeSealed(j.dst, plaintext, newKey)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	images, err := e.loadManifest(oldKey)
	if err != nil {
		return 0, err
	}
	if images != nil || filex.Exists(e.manifestPath) {
		if err := saveManifest(filepath.Join(e.stagingDir, manifestName), images, newKey); err != nil {
			return 0, err
		}
	}
	return len(jobs), nil
}

// commit promotes a staged password change. Every step is idempotent so an
// interrupted commit can be replayed.
func (e *Engine) commit(ctx context.Context) error {
	if err := e.passwords.commitPending(ctx); err != nil {
		return err
	}
	for _, name := range []string{imagesDirName, thumbsDirName} {
		if err := swapDir(
			filepath.Join(e.root, name),
			filepath.Join(e.stagingDir, name),
			filepath.Join(e.stagingDir, name+".old"),
		); err != nil {
			return err
		}
	}
	stagedManifest := filepath.Join(e.stagingDir, manifestName)
	if filex.Exists(stagedManifest) {
		if err := os.Rename(stagedManifest, e.manifestPath); err != nil {
			return err
		}
	}
	_ = filex.SyncDir(e.root)
	return os.RemoveAll(e.stagingDir)
}

func swapDir(live, staged, old string) error {
	if !filex.Exists(staged) {
		return nil
	}
	if filex.Exists(live) {
		if err := os.RemoveAll(old); err != nil {
			return err
		}
		if err := os.Rename(live, old); err != nil {
			return err
		}
	}
	return os.Rename(staged, live)
}

func (e *Engine) recover(ctx context.Context) error {
	if !filex.Exists(e.stagingDir) {
		return nil
	}
	if filex.Exists(filepath.Join(e.stagingDir, commitMarker)) {
		e.logger.Warn(ctx, "resuming interrupted vault password change")
		return e.commit(ctx)
	}
	e.logger.Warn(ctx, "discarding incomplete vault password change")
	if err := e.passwords.discardPending(ctx); err != nil {
		return err
	}
	return os.RemoveAll(e.stagingDir)
}

// SetPassword sets the first vault password. Images or thumbnails left
// behind by a lost credential cannot be opened under a new one, so it
// refuses with ErrOrphanedContent until ClearVault has run. A stale
// manifest with no files behind it is dropped.
func (e *Engine) SetPassword(ctx context.Context, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	set, err := e.passwords.IsPasswordSet(ctx)
	if err != nil {
		return err
	}
	if set {
		return fmt.Errorf("vault password: %w", common.ErrAlreadyExists)
	}

	n, err := e.countSealedFiles()
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Warn(ctx, "vault content without credential", "files", n)
		return fmt.Errorf("%w: %d files", ErrOrphanedContent, n)
	}
	if err := filex.RemoveIfExists(e.manifestPath); err != nil {
		return err
	}
	if err := e.passwords.SetPassword(ctx, password); err != nil {
		return err
	}
	e.logger.Info(ctx, "vault password set")
	return nil
}

func (e *Engine) countSealedFiles() (int, error) {
	n := 0
	for _, d := range []string{e.imagesDir, e.thumbsDir} {
		entries, err := os.ReadDir(d)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		for _, de := range entries {
			if !de.IsDir() && strings.HasSuffix(de.Name(), imageExt) {
				n++
			}
		}
	}
	return n, nil
}

// ClearVault deletes all vault content, the credential and any saved
// biometric password.
func (e *Engine) ClearVault(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range []string{e.imagesDir, e.thumbsDir, e.stagingDir} {
		if err := os.RemoveAll(d); err != nil {
			return err
		}
	}
	if err := filex.RemoveIfExists(e.manifestPath); err != nil {
		return err
	}
	if err := e.ensureDirs(); err != nil {
		return err
	}
	if err := e.passwords.Clear(ctx); err != nil {
		return err
	}
	if e.bio != nil {
		if err := e.bio.ClearSavedPassword(ctx); err != nil {
			return err
		}
	}
	e.logger.Info(ctx, "vault cleared")
	return nil
}

// SavePasswordForBiometric caches password for biometric unlock after
// checking it against the credential.
func (e *Engine) SavePasswordForBiometric(ctx context.Context, password string) error {
	if e.bio == nil {
		return common.ErrBiometricDisabled
	}
	ok, err := e.passwords.VerifyPassword(ctx, password)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrInvalidCredential
	}
	return e.bio.SavePassword(ctx, password)
}

func (e *Engine) GetSavedPasswordForBiometric(ctx context.Context) (string, error) {
	if e.bio == nil {
		return "", common.ErrBiometricDisabled
	}
	return e.bio.SavedPassword(ctx)
}

func (e *Engine) ClearSavedPassword(ctx context.Context) error {
	if e.bio == nil {
		return nil
	}
	return e.bio.ClearSavedPassword(ctx)
}

// UnlockWithBiometric returns the cached password after auth succeeds.
func (e *Engine) UnlockWithBiometric(ctx context.Context, auth Authenticator) (string, error) {
	if e.bio == nil {
		return "", common.ErrBiometricDisabled
	}
	return e.bio.Unlock(ctx, auth)
}
