package validate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	appLog "vocsched/internal/log"
)

var (
	ErrValidatorMissing = errors.New("validate: xmllint not found")
	ErrInvalidXML       = errors.New("validate: xml does not match schema")
)

// xmllint is the binary looked up on PATH.
var xmllint = "xmllint"

// XMLLint checks xmlPath against the XSD at xsdPath with xmllint.
func XMLLint(ctx context.Context, xsdPath, xmlPath string) error {
	bin, err := exec.LookPath(xmllint)
	if err != nil {
		return ErrValidatorMissing
	}

	cmd := exec.CommandContext(ctx, bin, "--noout", "--schema", xsdPath, xmlPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return fmt.Errorf("%w: %s", ErrInvalidXML, strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("validate: run xmllint: %w", err)
	}
	appLog.Debug("xmllint ok", "xml", xmlPath, "xsd", xsdPath)
	return nil
}
