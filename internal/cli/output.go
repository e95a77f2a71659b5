package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"dajam-backend/internal/apperr"
	"dajam-backend/internal/models"
	"dajam-backend/internal/subscription"
)

const barWidth = 24

func errorText(err error) string {
	var nf *apperr.NotFoundError
	var je *apperr.JoinError
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &nf):
		return color.RedString("not found: ") + nf.Message
	case errors.As(err, &je):
		return color.RedString("cannot join: ") + je.Message
	case errors.As(err, &ve):
		msg := color.RedString("invalid: ") + ve.Message
		for field, problem := range ve.Fields {
			msg += fmt.Sprintf("\n  %s: %s", field, problem)
		}
		return msg
	}
	return color.RedString("error: ") + err.Error()
}

func stateText(s subscription.State) string {
	switch s {
	case subscription.StateConnected:
		return color.GreenString(string(s))
	case subscription.StateConnecting:
		return color.YellowString(string(s))
	case subscription.StateError:
		return color.RedString(string(s))
	}
	return string(s)
}

func printSession(w io.Writer, s *models.Session) {
	fmt.Fprintf(w, "%s  %s\n", color.CyanString(codeLabel(s)), s.Title)
	status := color.GreenString("open")
	if !s.IsActive {
		status = color.RedString("closed")
	}
	fmt.Fprintf(w, "  id: %s  status: %s\n", s.ID, status)
}

func codeLabel(s *models.Session) string {
	return string(s.AppType) + "/" + s.Code
}

func printResults(w io.Writer, res *models.SessionResults) {
	fmt.Fprintf(w, "%s  %d participants, %d rows\n",
		color.CyanString(string(res.Kind)), res.ParticipantCount, res.TotalRows)

	for _, opt := range res.Options {
		label := opt.Option
		if opt.Rank > 0 {
			label = fmt.Sprintf("#%d %s", opt.Rank, opt.Option)
		}
		value := fmt.Sprintf("%d", opt.Count)
		if res.Kind == models.ResultBorda {
			value = fmt.Sprintf("%d pts", opt.Score)
		}
		fmt.Fprintf(w, "  %-24s %s %s (%.1f%%)\n", label, bar(opt.Percentage), value, opt.Percentage)
	}
	for _, word := range res.Words {
		fmt.Fprintf(w, "  %-24s %d\n", word.Word, word.Count)
	}
}

func bar(pct float64) string {
	n := int(pct / 100 * barWidth)
	if n < 0 {
		n = 0
	}
	if n > barWidth {
		n = barWidth
	}
	return color.GreenString(strings.Repeat("█", n)) + strings.Repeat("·", barWidth-n)
}
