package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/cbemstar/image-converter-app/internal/document"
)

// SecureOptions はパスワード設定・解除の指定です。
// RemovePassword が true の場合は Password より優先され、保護を解除します。
// CurrentPassword は既に暗号化されたドキュメントを開くためのパスワードです（空なら Password を試します）。
type SecureOptions struct {
	Password        string
	CurrentPassword string
	RemovePassword  bool
}

// Secure はドキュメントにパスワード保護を設定、または解除します。
// 設定時は AES-256 で暗号化し、ユーザー・オーナーパスワードはともに Password、権限は印刷のみ許可します。
func (e *Engine) Secure(ctx context.Context, src Source, opts SecureOptions) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !opts.RemovePassword && opts.Password == "" {
		return nil, &Error{Kind: InvalidOption, Source: src.Name, Err: errors.New("password is required unless removing protection")}
	}

	current := opts.CurrentPassword
	if current == "" {
		current = src.Password
	}
	if current == "" && opts.RemovePassword {
		current = opts.Password
	}

	open := src
	open.Password = current
	doc, err := openSource(open)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plain, err := decrypted(src.Data, doc, current)
	if err != nil {
		return nil, &Error{Kind: classifyPDFError(err), Source: src.Name, Err: err}
	}
	if opts.RemovePassword {
		return plain, nil
	}

	conf := model.NewAESConfiguration(opts.Password, opts.Password, 256)
	conf.ValidationMode = model.ValidationRelaxed
	conf.Permissions = model.PermissionsPrint

	var out bytes.Buffer
	if err := guard(func() error {
		return pdfapi.Encrypt(bytes.NewReader(plain), &out, conf)
	}); err != nil {
		return nil, &Error{Kind: CorruptDocument, Source: src.Name, Err: err}
	}
	return out.Bytes(), nil
}

// decrypted は暗号化を外したドキュメントのバイト列を返します。暗号化されていなければそのまま書き直します。
func decrypted(data []byte, doc *document.Document, password string) ([]byte, error) {
	if !doc.Encrypted() {
		return doc.Bytes()
	}

	var out bytes.Buffer
	err := guard(func() error {
		return pdfapi.Decrypt(bytes.NewReader(data), &out, document.NewConfiguration(password))
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func classifyPDFError(err error) Kind {
	if errors.Is(err, pdfcpu.ErrWrongPassword) || errors.Is(err, document.ErrPassword) {
		return PasswordRequired
	}
	return CorruptDocument
}

// guard は pdfcpu 内部の panic をエラーに変換します。
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf processing failed: %v", r)
		}
	}()
	return fn()
}
