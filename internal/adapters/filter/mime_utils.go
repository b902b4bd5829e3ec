package filter

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/mikey/phishguard/internal/core"
	"golang.org/x/text/encoding/htmlindex"
)

const maxMIMEDepth = 10

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words
func decodeEncodedHeader(value string) (string, error) {
	return wordDecoder.DecodeHeader(value)
}

// parseMessage reads a raw RFC 5322 message into an analysis request.
// The parsed message is returned so callers can rewrite its headers.
func parseMessage(raw []byte) (*core.AnalysisRequest, *mail.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse email message: %w", err)
	}

	req := &core.AnalysisRequest{}
	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}
	req.Subject = subject

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message body: %w", err)
	}
	header := textproto.MIMEHeader(msg.Header)
	if err := walkPart(req, header, body, 0); err != nil {
		return nil, nil, err
	}
	return req, msg, nil
}

// walkPart adds one MIME entity to req, recursing into multiparts
func walkPart(req *core.AnalysisRequest, header textproto.MIMEHeader, body []byte, depth int) error {
	if depth > maxMIMEDepth {
		return errors.New("MIME structure nested too deeply")
	}

	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return appendText(req, "text/plain", params, header, body)
		}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// keep whatever was read before the damage
				return nil
			}
			data, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			if err := walkPart(req, part.Header, data, depth+1); err != nil {
				return err
			}
		}
	}

	if name := attachmentName(header, params); name != "" {
		content, err := decodeTransfer(header, body)
		if err != nil {
			content = nil
		}
		req.Attachments = append(req.Attachments, core.Attachment{
			Filename: name,
			MimeType: mediaType,
			Content:  content,
		})
		return nil
	}

	return appendText(req, mediaType, params, header, body)
}

func appendText(req *core.AnalysisRequest, mediaType string, params map[string]string, header textproto.MIMEHeader, body []byte) error {
	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil
	}
	data, err := decodeTransfer(header, body)
	if err != nil {
		return nil
	}
	text := decodeCharset(params["charset"], data)
	if mediaType == "text/html" {
		req.HTML = joinText(req.HTML, text)
	} else {
		req.Body = joinText(req.Body, text)
	}
	return nil
}

func joinText(existing, text string) string {
	if existing == "" {
		return text
	}
	return existing + "\n" + text
}

func attachmentName(header textproto.MIMEHeader, params map[string]string) string {
	disposition, dparams, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	if err == nil {
		if name := dparams["filename"]; name != "" {
			return decodeName(name)
		}
		if disposition == "attachment" {
			if name := params["name"]; name != "" {
				return decodeName(name)
			}
			return "attachment"
		}
	}
	if name := params["name"]; name != "" {
		return decodeName(name)
	}
	return ""
}

func decodeName(name string) string {
	if decoded, err := decodeEncodedHeader(name); err == nil {
		return decoded
	}
	return name
}

func decodeTransfer(header textproto.MIMEHeader, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		clean := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, body)
		out := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
		n, err := base64.StdEncoding.Decode(out, clean)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 part: %w", err)
		}
		return out[:n], nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
	default:
		return body, nil
	}
}

func decodeCharset(charset string, data []byte) string {
	charset = strings.ToLower(charset)
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return strings.ToValidUTF8(string(data), "")
	}
	r, err := charsetReader(charset, bytes.NewReader(data))
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(decoded)
}

// splitBody returns the raw body that follows the header block
func splitBody(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[i+2:]
	}
	return nil
}
