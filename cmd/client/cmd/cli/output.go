package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"tiklay/internal/domain/offline"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ResolveFormat без явного флага выбирает text для терминала и json для конвейера
func ResolveFormat(flag string, out io.Writer) (Format, error) {
	switch Format(flag) {
	case FormatText, FormatJSON, FormatYAML:
		return Format(flag), nil
	case "":
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return FormatText, nil
		}
		return FormatJSON, nil
	}
	return "", fmt.Errorf("неизвестный формат вывода %q (text, json, yaml)", flag)
}

// Output формат из флага --output корневой команды
func Output(cmd *cobra.Command) (Format, error) {
	flag, _ := cmd.Flags().GetString("output")
	return ResolveFormat(flag, cmd.OutOrStdout())
}

// Render выводит v в выбранном формате; text рисует человекочитаемый вариант
func Render(w io.Writer, f Format, v any, text func(io.Writer) error) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		// через JSON, чтобы payload попал в вывод как структура, а не как байты
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var tree any
		if err := json.Unmarshal(data, &tree); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(tree)
	default:
		return text(w)
	}
}

// Status раскрашивает статус синхронизации
func Status(s offline.SyncStatus) string {
	switch s {
	case offline.StatusSynced:
		return color.GreenString(string(s))
	case offline.StatusPending:
		return color.YellowString(string(s))
	case offline.StatusConflict, offline.StatusError:
		return color.RedString(string(s))
	}
	return string(s)
}

// Pretty JSON с отступами для текстового вывода
func Pretty(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(data)
}
