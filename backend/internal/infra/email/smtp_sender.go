package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

const smtpDialTimeout = 10 * time.Second

// Sender 通过 SMTP 把删除申请通知发给管理员邮箱，正文同时带纯文本与 HTML。
type Sender struct {
	cfg  SMTPConfig
	auth smtp.Auth
	now  func() time.Time
}

// NewSender 根据 SMTPConfig 构造发送器。
func NewSender(cfg SMTPConfig) (*Sender, error) {
	cfg.Recipient = strings.TrimSpace(cfg.Recipient)
	if cfg.Recipient == "" {
		return nil, fmt.Errorf("smtp recipient not configured")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host not configured")
	}
	s := &Sender{cfg: cfg, now: time.Now}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

// Name 用作指标与日志中的渠道名。
func (s *Sender) Name() string { return "smtp" }

// NotifyDeletionRequest 发送删除申请通知。
func (s *Sender) NotifyDeletionRequest(ctx context.Context, notice promptdomain.DeletionNotice) error {
	subject, textBody, htmlBody := composeDeletionContent(s.cfg.PublicBaseURL, notice)
	msg, err := s.buildMessage(subject, textBody, htmlBody)
	if err != nil {
		return err
	}
	return s.deliver(ctx, msg)
}

func (s *Sender) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if ok, _ := client.Extension("AUTH"); ok && s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(envelopeAddress(s.cfg.From)); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(s.cfg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

// buildMessage 组装 multipart/alternative 邮件，htmlBody 为空时只发纯文本。
func (s *Sender) buildMessage(subject, textBody, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	header := textproto.MIMEHeader{}
	header.Set("From", formatAddress(s.cfg.From))
	header.Set("To", s.cfg.Recipient)
	header.Set("Subject", mime.QEncoding.Encode("UTF-8", subject))
	header.Set("Date", s.now().Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")

	if htmlBody == "" {
		header.Set("Content-Type", "text/plain; charset=UTF-8")
		writeHeader(&buf, header)
		buf.WriteString(textBody)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", textBody},
		{"text/html; charset=UTF-8", htmlBody},
	}
	for _, p := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("create mail part: %w", err)
		}
		if _, err := pw.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write mail part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	writeHeader(&buf, header)
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	for _, key := range []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type"} {
		fmt.Fprintf(buf, "%s: %s\r\n", key, header.Get(key))
	}
	buf.WriteString("\r\n")
}

func envelopeAddress(raw string) string {
	if addr, err := mail.ParseAddress(raw); err == nil && addr.Address != "" {
		return addr.Address
	}
	return strings.TrimSpace(raw)
}

// formatAddress 对显示名做 RFC 2047 编码，地址无法解析时原样返回。
func formatAddress(raw string) string {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return addr.String()
}
