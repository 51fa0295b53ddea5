// Package download saves the selected images of a gallery into its folder.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"blog-gallery-scraper/pkg/fetch"
	"blog-gallery-scraper/pkg/gallery"
	"blog-gallery-scraper/pkg/models"
	"blog-gallery-scraper/pkg/parse"
	"blog-gallery-scraper/pkg/storage"
	"blog-gallery-scraper/pkg/utils"
)

const DefaultRetryDelay = 10 * time.Second

// Options tunes a Downloader. Zero values select the defaults.
type Options struct {
	RetryDelay   time.Duration   // wait before retrying a disconnected download
	MaxRetries   int             // 0 retries disconnects forever
	MaxImageSize int64           // 0 means no limit
	Sleep        utils.SleepFunc // defaults to utils.Sleep
}

// Downloader fetches gallery images one at a time.
// Only a remote disconnect is retried; every other failure is returned.
type Downloader struct {
	fetcher      *fetch.Fetcher
	store        storage.ImageStore
	out          io.Writer
	retryDelay   time.Duration
	maxRetries   int
	maxImageSize int64
	sleep        utils.SleepFunc
	log          *logrus.Entry
}

// NewDownloader creates a Downloader that prints progress to out and journals to store
func NewDownloader(fetcher *fetch.Fetcher, store storage.ImageStore, out io.Writer, opts Options, log *logrus.Entry) *Downloader {
	d := &Downloader{
		fetcher:      fetcher,
		store:        store,
		out:          out,
		retryDelay:   opts.RetryDelay,
		maxRetries:   opts.MaxRetries,
		maxImageSize: opts.MaxImageSize,
		sleep:        opts.Sleep,
		log:          log,
	}
	if d.retryDelay <= 0 {
		d.retryDelay = DefaultRetryDelay
	}
	if d.sleep == nil {
		d.sleep = utils.Sleep
	}
	return d
}

// SaveGallery downloads items into folder as padded-index files and prints "i/N"
// after each one. It stops at the first failure.
func (d *Downloader) SaveGallery(ctx context.Context, folder string, items []models.GalleryItem) (int, error) {
	width := gallery.PadWidth(len(items))
	saved := 0
	for _, item := range items {
		dst := filepath.Join(folder, gallery.FileName(item, width))
		imgLog := d.log.WithFields(logrus.Fields{"image_url": item.SourceURL, "file": dst})

		attempts, err := d.FetchImage(ctx, item.SourceURL, dst)
		d.journal(item.SourceURL, dst, attempts, err, imgLog)
		if err != nil {
			imgLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Image download failed: %v", err)
			return saved, err
		}
		saved++
		fmt.Fprintf(d.out, "%s/%d\n", gallery.FormatIndex(item.Index, width), len(items))
	}
	return saved, nil
}

// FetchImage writes the body of src to dst, retrying after the retry delay while
// the server drops the connection. It returns the number of attempts made.
func (d *Downloader) FetchImage(ctx context.Context, src, dst string) (int, error) {
	attempts := 0
	for {
		attempts++
		err := d.fetchOnce(ctx, src, dst)
		if err == nil {
			return attempts, nil
		}
		if ctx.Err() != nil || !utils.IsRemoteDisconnect(err) {
			return attempts, err
		}
		if d.maxRetries > 0 && attempts > d.maxRetries {
			return attempts, fmt.Errorf("%w: %s after %d attempts: %w", utils.ErrRetryFailed, src, attempts, err)
		}

		d.log.WithFields(logrus.Fields{"image_url": src, "attempt": attempts, "delay": d.retryDelay}).Warnf("Remote disconnected: %v", err)
		if err := d.sleep(ctx, d.retryDelay); err != nil {
			return attempts, err
		}
		fmt.Fprintf(d.out, "remote disconnected. waited %s, trying again\n", d.retryDelay)
	}
}

// fetchOnce makes one attempt. The body is streamed into a temporary file next to
// dst and renamed into place, so a failed attempt never leaves a partial image.
func (d *Downloader) fetchOnce(ctx context.Context, src, dst string) (err error) {
	resp, err := d.fetcher.Get(ctx, src)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %s for %s", utils.ErrFetch, resp.Status, src)
	}
	if d.maxImageSize > 0 && resp.ContentLength > d.maxImageSize {
		return fmt.Errorf("%w: %s declares %d bytes, limit %d", utils.ErrResponseBodyRead, src, resp.ContentLength, d.maxImageSize)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file for '%s': %w", utils.ErrFilesystem, dst, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	body := &trackedReader{r: resp.Body}
	var reader io.Reader = body
	if d.maxImageSize > 0 {
		reader = io.LimitReader(body, d.maxImageSize+1)
	}
	copied, err := io.Copy(tmp, reader)
	if err != nil {
		if body.err != nil {
			return fmt.Errorf("%w: %s: %w", utils.ErrResponseBodyRead, src, body.err)
		}
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, dst, err)
	}
	if d.maxImageSize > 0 && copied > d.maxImageSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", utils.ErrResponseBodyRead, src, d.maxImageSize)
	}
	if resp.ContentLength >= 0 && copied < resp.ContentLength {
		return fmt.Errorf("%w: %s: got %d of %d bytes: %w", utils.ErrResponseBodyRead, src, copied, resp.ContentLength, io.ErrUnexpectedEOF)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("%w: moving download to '%s': %w", utils.ErrFilesystem, dst, err)
	}
	return nil
}

func (d *Downloader) journal(src, dst string, attempts int, fetchErr error, imgLog *logrus.Entry) {
	if d.store == nil {
		return
	}
	key := src
	if norm, _, err := parse.ParseAndNormalize(src); err == nil {
		key = norm
	}

	entry := &models.ImageDBEntry{
		Status:      models.ImageStatusSuccess,
		LocalPath:   dst,
		Attempts:    attempts,
		LastAttempt: time.Now(),
	}
	if fetchErr != nil {
		entry.Status = models.ImageStatusFailure
		entry.LocalPath = ""
		entry.ErrorType = utils.CategorizeError(fetchErr)
	} else if hash, err := utils.CalculateFileSHA256(dst); err == nil {
		entry.ContentHash = hash
	} else {
		imgLog.Warnf("Could not hash saved image: %v", err)
	}

	if err := d.store.UpdateImageStatus(key, entry); err != nil {
		imgLog.Errorf("Failed to journal image status: %v", err)
	}
}

// trackedReader remembers the last read error so body failures can be told apart
// from write failures after io.Copy.
type trackedReader struct {
	r   io.Reader
	err error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
