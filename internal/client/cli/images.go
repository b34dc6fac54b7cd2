package cli

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"os"
	"path/filepath"
)

// AddImage imports a file into the vault. The source file is left alone.
func (a *App) AddImage(ctx context.Context, path string) error {
	if !a.requireUnlocked() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(err)
	}
	img, err := a.vault.AddImage(ctx, data, string(a.pin), filepath.Base(path))
	if err != nil {
		return a.fail(err)
	}
	a.printf("Added %s (%s)\n", img.ID, img.FileName)
	return nil
}

// List prints vault images, newest first. While locked only the ids found
// on disk are shown.
func (a *App) List(ctx context.Context) error {
	if !a.isUnlocked() {
		images, err := a.vault.GetAllImages(ctx)
		if err != nil {
			return a.fail(err)
		}
		for _, img := range images {
			a.printf("%s  %s\n", img.ID, img.AddedAt.Local().Format("2006-01-02 15:04"))
		}
		a.printf("%d image(s); unlock to see names\n", len(images))
		return nil
	}

	images, err := a.vault.ListImages(ctx, string(a.pin))
	if err != nil {
		return a.fail(err)
	}
	for _, img := range images {
		a.printf("%s  %s  %s\n", img.ID, img.AddedAt.Local().Format("2006-01-02 15:04"), img.FileName)
	}
	a.printf("%d image(s)\n", len(images))
	return nil
}

// Thumb writes the decrypted thumbnail to dest, or into the gallery
// directory when dest is empty.
func (a *App) Thumb(ctx context.Context, id, dest string) error {
	if !a.requireUnlocked() {
		return nil
	}
	data, err := a.vault.GetThumbnailData(ctx, id, string(a.pin))
	if err != nil {
		return a.fail(err)
	}
	if dest == "" {
		if err := os.MkdirAll(a.config.GalleryDir, 0o700); err != nil {
			return a.fail(err)
		}
		dest = filepath.Join(a.config.GalleryDir, id+"_thumb.jpg")
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return a.fail(err)
	}
	a.println("Thumbnail written to", dest)
	return nil
}

// Show prints what the image is without writing it anywhere.
func (a *App) Show(ctx context.Context, id string) error {
	if !a.requireUnlocked() {
		return nil
	}
	data, err := a.vault.GetImageData(ctx, id, string(a.pin))
	if err != nil {
		return a.fail(err)
	}
	a.printf("ID:    %s\nType:  %s\nBytes: %d\n", id, http.DetectContentType(data), len(data))
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		a.printf("Size:  %dx%d\n", cfg.Width, cfg.Height)
	}
	return nil
}

// Export copies the decrypted image into the gallery directory.
func (a *App) Export(ctx context.Context, id string) error {
	if !a.requireUnlocked() {
		return nil
	}
	path, err := a.vault.ExportImage(ctx, id, string(a.pin), a.config.GalleryDir)
	if err != nil {
		return a.fail(err)
	}
	a.println("Exported to", path)
	return nil
}

// Move exports the image and removes it from the vault.
func (a *App) Move(ctx context.Context, id string) error {
	if !a.requireUnlocked() {
		return nil
	}
	path, err := a.vault.MoveOut(ctx, id, string(a.pin), a.config.GalleryDir)
	if err != nil {
		return a.fail(err)
	}
	a.println("Moved to", path)
	return nil
}

func (a *App) Delete(ctx context.Context, id string) error {
	if !a.requireUnlocked() {
		return nil
	}
	if err := a.vault.DeleteImageWithPassword(ctx, id, string(a.pin)); err != nil {
		return a.fail(err)
	}
	a.println("Deleted", id)
	return nil
}
