package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/dhcgn/maildirwatch/header"
	"github.com/dhcgn/maildirwatch/model"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeFolder []string
	ExcludeFolder []string
	// Condition is an expr boolean expression evaluated per message.
	Condition string
}

// Filter decides which reports reach the output.
type Filter struct {
	includeMode   bool
	excludeMode   bool
	includeFolder []*regexp.Regexp
	excludeFolder []*regexp.Regexp
	program       *vm.Program
	want          header.Want
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeFolder, err := compilePatterns(opts.IncludeFolder)
	if err != nil {
		return nil, fmt.Errorf("compile include-folder pattern: %w", err)
	}
	excludeFolder, err := compilePatterns(opts.ExcludeFolder)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-folder pattern: %w", err)
	}

	includeActive := len(includeFolder) > 0
	excludeActive := len(excludeFolder) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	f := &Filter{
		includeMode:   includeActive,
		excludeMode:   excludeActive,
		includeFolder: includeFolder,
		excludeFolder: excludeFolder,
	}

	if cond := strings.TrimSpace(opts.Condition); cond != "" {
		program, err := expr.Compile(cond, expr.Env(env(model.Message{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile condition: %w", err)
		}
		f.program = program
		if strings.Contains(cond, "subject") {
			f.want |= header.Subject
		}
		if strings.Contains(cond, "from") {
			f.want |= header.From
		}
	}

	return f, nil
}

// Want reports the header fields the condition reads.
func (f *Filter) Want() header.Want {
	return f.want
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(msg model.Message) (bool, error) {
	if f.includeMode && !matchAny(f.includeFolder, msg.Folder) {
		return false, nil
	}
	if f.excludeMode && matchAny(f.excludeFolder, msg.Folder) {
		return false, nil
	}
	if f.program == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, env(msg))
	if err != nil {
		return false, fmt.Errorf("evaluate condition for %s: %w", msg.Path, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

func env(msg model.Message) map[string]interface{} {
	return map[string]interface{}{
		"lower": strings.ToLower,

		"folder":  msg.Folder,
		"subdir":  msg.Subdir.String(),
		"name":    msg.Name,
		"path":    msg.Path,
		"subject": msg.Subject,
		"from":    msg.From,
	}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
