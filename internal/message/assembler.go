// Package message assembles deliverable MIME messages from draft fields:
// plain text, an optional HTML body with inline images embedded as
// content-addressed parts, and file attachments.
package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/google/uuid"

	"github.com/spoofsent/spoofsent/internal/address"
)

// Structure identifies the container shape of an assembled message.
const (
	StructurePlain       = "plain"
	StructureAlternative = "alternative"
	StructureRelated     = "related"
)

// Input carries the draft fields the assembler consumes.
type Input struct {
	From    string
	To      string
	Subject string
	Body    string // plain-text body; may itself be HTML

	HTMLPath string // optional file holding the HTML body
	BaseDir  string // base directory for relative image references

	Attachments []string // file paths
}

// Assembled is a composed message ready for transmission, plus the resolved
// plain/HTML content pair.
type Assembled struct {
	Data  []byte
	Plain string
	HTML  string

	Structure    string
	InlineImages int
	Skipped      []string // diagnostics for skipped images and attachments
}

// inlinePart is a materialized inline image.
type inlinePart struct {
	cid      string
	subtype  string
	filename string
	data     []byte
}

// attachmentPart is a materialized file attachment.
type attachmentPart struct {
	filename string
	mimeType string
	data     []byte
}

var (
	htmlDocPattern = regexp.MustCompile(`(?i)^\s*<(!doctype\s+html|html)\b`)
	htmlTagPattern = regexp.MustCompile(`(?i)<([a-z]+)(\s[^>]*)?>`)
	imgSrcPattern  = regexp.MustCompile(`(?i)<img[^>]*?\ssrc\s*=\s*["']([^"']+)["']`)
	dataURIPattern = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,(.+)$`)
)

// imageExtensions are the supported raster types for local inline images.
var imageExtensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
	".bmp":  "bmp",
}

// Assemble builds a deliverable message from the input. Unresolvable inline
// images and unreadable attachments are skipped with a diagnostic, never a
// failure. The assembler performs no network I/O.
func Assemble(in Input, logger *slog.Logger) (*Assembled, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	out := &Assembled{Plain: in.Body, Structure: StructurePlain}

	html, err := resolveHTML(in)
	if err != nil {
		return nil, err
	}

	var images []inlinePart
	if html != "" {
		html, images = embedImages(html, in.BaseDir, out, logger)
		out.HTML = html
		out.InlineImages = len(images)
		if len(images) > 0 {
			out.Structure = StructureRelated
		} else {
			out.Structure = StructureAlternative
		}
	}

	attachments := loadAttachments(in.Attachments, out, logger)

	data, err := render(in, out.Plain, html, images, attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	out.Data = data
	return out, nil
}

// resolveHTML picks the HTML source: an explicit file wins, otherwise the
// plain body is used when it looks like HTML.
func resolveHTML(in Input) (string, error) {
	if in.HTMLPath != "" {
		path := in.HTMLPath
		if !filepath.IsAbs(path) && in.BaseDir != "" {
			path = filepath.Join(in.BaseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read HTML body %s: %w", in.HTMLPath, err)
		}
		return string(data), nil
	}
	if LooksLikeHTML(in.Body) {
		return in.Body, nil
	}
	return "", nil
}

// LooksLikeHTML reports whether text should be treated as an HTML body:
// either an explicit document opening tag or any generic markup tag.
func LooksLikeHTML(text string) bool {
	return htmlDocPattern.MatchString(text) || htmlTagPattern.MatchString(text)
}

// embedImages materializes every resolvable image reference as an inline
// part and rewrites its reference to the generated content identifier.
func embedImages(html, baseDir string, out *Assembled, logger *slog.Logger) (string, []inlinePart) {
	var images []inlinePart
	seen := make(map[string]bool)

	for _, match := range imgSrcPattern.FindAllStringSubmatch(html, -1) {
		ref := match[1]
		if seen[ref] {
			continue
		}
		seen[ref] = true

		var part *inlinePart
		if m := dataURIPattern.FindStringSubmatch(ref); m != nil {
			part = decodeDataURI(m, out, logger)
		} else if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			continue // remote references stay as-is
		} else {
			part = loadLocalImage(ref, baseDir, out, logger)
		}
		if part == nil {
			continue
		}

		html = strings.ReplaceAll(html, ref, "cid:"+part.cid)
		images = append(images, *part)
	}
	return html, images
}

func decodeDataURI(match []string, out *Assembled, logger *slog.Logger) *inlinePart {
	subtype, encoded := match[1], match[2]
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		out.Skipped = append(out.Skipped, "undecodable data URI image")
		logger.Warn("skipping undecodable data URI image", "error", err)
		return nil
	}
	cid := uuid.New().String()
	return &inlinePart{
		cid:      cid,
		subtype:  subtype,
		filename: cid + "." + subtype,
		data:     data,
	}
}

func loadLocalImage(ref, baseDir string, out *Assembled, logger *slog.Logger) *inlinePart {
	path := ref
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	subtype, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		out.Skipped = append(out.Skipped, fmt.Sprintf("unsupported image type: %s", ref))
		logger.Warn("skipping image with unsupported type", "ref", ref)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Skipped = append(out.Skipped, fmt.Sprintf("missing image: %s", ref))
		logger.Warn("skipping unreadable image", "ref", ref, "error", err)
		return nil
	}

	return &inlinePart{
		cid:      uuid.New().String(),
		subtype:  subtype,
		filename: filepath.Base(path),
		data:     data,
	}
}

// loadAttachments reads each attachment path; unreadable files are skipped
// with a diagnostic.
func loadAttachments(paths []string, out *Assembled, logger *slog.Logger) []attachmentPart {
	var parts []attachmentPart
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			out.Skipped = append(out.Skipped, fmt.Sprintf("unreadable attachment: %s", path))
			logger.Warn("skipping unreadable attachment", "path", path, "error", err)
			continue
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		parts = append(parts, attachmentPart{
			filename: filepath.Base(path),
			mimeType: mimeType,
			data:     data,
		})
	}
	return parts
}

// render writes the MIME document. Container shape: inline images force a
// related structure whose first child is the alternative pair; attachments
// wrap the content body in an outer mixed container.
func render(in Input, plain, html string, images []inlinePart, attachments []attachmentPart) ([]byte, error) {
	var buf bytes.Buffer

	root := baseHeader(in)
	if len(attachments) > 0 {
		root.SetContentType("multipart/mixed", map[string]string{"boundary": newBoundary()})
		w, err := message.CreateWriter(&buf, root)
		if err != nil {
			return nil, err
		}

		content, err := w.CreatePart(contentHeader(html, images))
		if err != nil {
			return nil, err
		}
		if err := writeContent(content, plain, html, images); err != nil {
			return nil, err
		}
		if err := content.Close(); err != nil {
			return nil, err
		}

		for _, att := range attachments {
			if err := writeAttachment(w, att); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	header := contentHeader(html, images)
	mergeHeader(&header, root)
	w, err := message.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if err := writeContent(w, plain, html, images); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// baseHeader carries the top-level mail headers.
func baseHeader(in Input) message.Header {
	var h message.Header
	h.Set("From", in.From)
	h.Set("To", in.To)
	h.Set("Subject", mime.QEncoding.Encode("utf-8", in.Subject))
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), address.DomainOrDefault(in.From, "localhost")))
	h.Set("MIME-Version", "1.0")
	return h
}

// contentHeader returns the content-type header for the message body node.
func contentHeader(html string, images []inlinePart) message.Header {
	var h message.Header
	switch {
	case html == "":
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	case len(images) > 0:
		h.SetContentType("multipart/related", map[string]string{
			"boundary": newBoundary(),
			"type":     "multipart/alternative",
		})
	default:
		h.SetContentType("multipart/alternative", map[string]string{"boundary": newBoundary()})
	}
	return h
}

// writeContent writes the children of the content node.
func writeContent(w *message.Writer, plain, html string, images []inlinePart) error {
	if html == "" {
		_, err := w.Write([]byte(plain))
		return err
	}

	if len(images) == 0 {
		return writeAlternative(w, plain, html)
	}

	var altHeader message.Header
	altHeader.SetContentType("multipart/alternative", map[string]string{"boundary": newBoundary()})
	alt, err := w.CreatePart(altHeader)
	if err != nil {
		return err
	}
	if err := writeAlternative(alt, plain, html); err != nil {
		return err
	}
	if err := alt.Close(); err != nil {
		return err
	}

	for _, img := range images {
		if err := writeInlineImage(w, img); err != nil {
			return err
		}
	}
	return nil
}

// writeAlternative writes the plain and HTML siblings.
func writeAlternative(w *message.Writer, plain, html string) error {
	if err := writeTextPart(w, "text/plain", plain); err != nil {
		return err
	}
	return writeTextPart(w, "text/html", html)
}

func writeTextPart(w *message.Writer, mimeType, body string) error {
	var h message.Header
	h.SetContentType(mimeType, map[string]string{"charset": "utf-8"})
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return err
	}
	return part.Close()
}

func writeInlineImage(w *message.Writer, img inlinePart) error {
	var h message.Header
	h.SetContentType("image/"+img.subtype, nil)
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-ID", "<"+img.cid+">")
	h.SetContentDisposition("inline", map[string]string{"filename": img.filename})

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(img.data); err != nil {
		return err
	}
	return part.Close()
}

func writeAttachment(w *message.Writer, att attachmentPart) error {
	var h message.Header
	h.Set("Content-Type", att.mimeType)
	h.Set("Content-Transfer-Encoding", "base64")
	h.SetContentDisposition("attachment", map[string]string{"filename": att.filename})

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(att.data); err != nil {
		return err
	}
	return part.Close()
}

// mergeHeader copies the mail headers from src onto dst, which already
// carries the content-type.
func mergeHeader(dst *message.Header, src message.Header) {
	for _, key := range []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version"} {
		if v := src.Get(key); v != "" {
			dst.Set(key, v)
		}
	}
}

func newBoundary() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
