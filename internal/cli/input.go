package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/muhammadolammi/coverletter/internal/config"
	"github.com/muhammadolammi/coverletter/internal/document"
	"github.com/muhammadolammi/coverletter/internal/session"
)

// asker abstracts survey so input resolution can be tested.
type asker interface {
	Password(message string) (string, error)
	Input(message string) (string, error)
	Multiline(message string) (string, error)
}

type surveyAsker struct{}

func (surveyAsker) Password(message string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Password{Message: message}, &out, survey.WithValidator(survey.Required))
	return out, err
}

func (surveyAsker) Input(message string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Input{Message: message}, &out, survey.WithValidator(survey.Required))
	return out, err
}

func (surveyAsker) Multiline(message string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Multiline{Message: message}, &out)
	return out, err
}

// resolveToken returns the configured Replicate token or asks for one.
// A token that is not 40 characters starting with r8_ only warns.
func resolveToken(cfg *config.Config, ask asker, out printer) (string, error) {
	token := strings.TrimSpace(cfg.ReplicateAPIToken)
	if token != "" {
		out.Success("Replicate API token found in environment")
	} else {
		var err error
		token, err = ask.Password("Replicate API token:")
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(token)
	}
	if !config.ValidReplicateToken(token) {
		out.Warning("Please enter a valid Replicate API token (r8_ followed by 37 characters)")
	} else {
		out.Info("Token accepted, you can continue")
	}
	return token, nil
}

type inputs struct {
	cv        string
	offer     string
	offerFile string
}

// fillSession loads the CV and the offer into st, asking for whichever
// was not given on the command line.
func fillSession(ctx context.Context, st *session.State, in inputs, loader *document.Loader, ask asker, interactive bool) error {
	cvSource := in.cv
	if cvSource == "" && interactive {
		var err error
		cvSource, err = ask.Input("Path to your CV (.pdf, .docx, .txt or r2://key):")
		if err != nil {
			return fmt.Errorf("failed to read CV path: %w", err)
		}
	}
	if cvSource != "" {
		text, err := loader.Load(ctx, strings.TrimSpace(cvSource))
		if err != nil {
			return fmt.Errorf("failed to load CV: %w", err)
		}
		st.SetCV(cvSource, text)
	}

	offer := in.offer
	if offer == "" && in.offerFile != "" {
		data, err := os.ReadFile(in.offerFile)
		if err != nil {
			return fmt.Errorf("failed to read offer file: %w", err)
		}
		offer = string(data)
	}
	if offer == "" && interactive {
		var err error
		offer, err = ask.Multiline("Paste the target job offer:")
		if err != nil {
			return fmt.Errorf("failed to read offer: %w", err)
		}
	}
	st.SetOffer(offer)
	return nil
}
