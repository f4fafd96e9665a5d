package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/cohort/internal/output"
	"github.com/MikeSquared-Agency/cohort/internal/persona"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feedback [marketing copy]",
		Short: "Ask a persona how it reacts to marketing copy",
		Long: "Role-play a persona reading the copy and report purchase intent (1-10), reasons to buy " +
			"and reasons not to. The persona file may be a single persona, a personas bundle or a ZIP archive. " +
			"With --run the persona is read from the run archive instead.",
		Args: cobra.MaximumNArgs(1),
		Run:  runFeedback,
	}

	cmd.Flags().StringP("persona", "p", "", "Persona file (.json or .zip)")
	cmd.Flags().String("run", "", "Pick the persona from this archived run (needs DATABASE_URL)")
	cmd.Flags().String("persona-id", "", "Persona to pick from a bundle or run (default: the first)")
	cmd.Flags().StringP("copy-file", "c", "", "Read the marketing copy from this file")
	cmd.Flags().Bool("json", false, "Print the conversation as JSON")
	cmd.MarkFlagsOneRequired("persona", "run")
	cmd.MarkFlagsMutuallyExclusive("persona", "run")

	RootCmd.AddCommand(cmd)
}

func runFeedback(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("persona")
	runID, _ := cmd.Flags().GetString("run")
	id, _ := cmd.Flags().GetString("persona-id")
	copyFile, _ := cmd.Flags().GetString("copy-file")
	asJSON, _ := cmd.Flags().GetBool("json")

	var (
		p   persona.Persona
		err error
	)
	if path != "" {
		if p, err = loadPersona(path, id); err != nil {
			exitErr("load persona", err)
		}
	}

	var marketingCopy string
	switch {
	case copyFile != "":
		data, err := os.ReadFile(copyFile)
		if err != nil {
			exitErr("read copy", err)
		}
		marketingCopy = string(data)
	case len(args) == 1:
		marketingCopy = args[0]
	default:
		exitErr("feedback", errors.New("give the marketing copy as an argument or with --copy-file"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	proc, cleanup, err := newProcessor(ctx, cfg, slog.Default())
	if err != nil {
		exitErr("setup", err)
	}
	defer cleanup()

	if runID != "" {
		if p, err = proc.ArchivedPersona(ctx, runID, id); err != nil {
			cleanup()
			exitErr("load persona", err)
		}
	}

	res, err := proc.Feedback(ctx, p, marketingCopy)
	if err != nil {
		cleanup()
		exitErr("feedback", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		enc.Encode(res)
		return
	}
	fmt.Fprint(cmd.OutOrStdout(), renderFeedback(res, terminalWidth))
}

// loadPersona reads one persona from a single-persona file, a bundle or an
// archive. With an empty id the first persona is returned.
func loadPersona(path, id string) (persona.Persona, error) {
	var ps []persona.Persona
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		var err error
		if ps, err = output.ReadPersonas(path); err != nil {
			return persona.Persona{}, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return persona.Persona{}, fmt.Errorf("read persona: %w", err)
		}
		if isBundle(data) {
			ps, err = output.DecodePersonasJSON(data)
		} else {
			var p persona.Persona
			p, err = output.DecodePersona(data)
			ps = []persona.Persona{p}
		}
		if err != nil {
			return persona.Persona{}, err
		}
	}

	if len(ps) == 0 {
		return persona.Persona{}, fmt.Errorf("no personas in %s", path)
	}
	if id == "" {
		return ps[0], nil
	}
	for _, p := range ps {
		if p.PersonaID == id {
			return p, nil
		}
	}
	return persona.Persona{}, fmt.Errorf("persona %q not found in %s", id, path)
}

func isBundle(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return true
	}
	var wrapper struct {
		Personas json.RawMessage `json:"personas"`
	}
	return json.Unmarshal(trimmed, &wrapper) == nil && wrapper.Personas != nil
}
