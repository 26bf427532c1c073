package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/asheshgoplani/snapdeck/internal/classifier"
	"github.com/asheshgoplani/snapdeck/internal/config"
	"github.com/asheshgoplani/snapdeck/internal/delivery"
	"github.com/asheshgoplani/snapdeck/internal/prompt"
	"github.com/asheshgoplani/snapdeck/internal/query"
	"github.com/asheshgoplani/snapdeck/internal/session"
)

// readInput joins the positional args, or reads stdin when there are none
// or the only one is "-".
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

type classifyOutput struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Style      string   `json:"style"`
	Indicators []string `json:"indicators"`
	LabPrompt  bool     `json:"lab_prompt"`
	Prompt     string   `json:"prompt,omitempty"`
}

func newClassifyOutput(c classifier.Classification) classifyOutput {
	ind := c.Indicators
	if ind == nil {
		ind = []string{}
	}
	return classifyOutput{
		Category:   c.Category.String(),
		Confidence: c.Confidence,
		Style:      string(c.Style),
		Indicators: ind,
		LabPrompt:  prompt.UseLab(c),
	}
}

func handleClassify(args []string) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	showPrompt := fs.Bool("prompt", false, "Also print the prompt that would be sent")
	fs.Usage = func() {
		fmt.Println("Usage: snapdeck classify [options] [text|-]")
		fmt.Println()
		fmt.Println("Classify a question and show which prompt style it gets.")
		fmt.Println("Reads stdin when no text is given.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 2
	}

	text, err := readInput(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if text == "" {
		fs.Usage()
		return 2
	}

	pipeline, err := loadPipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("config:"), err)
	}

	cls := pipeline.Classifier.Classify(text)
	out := newClassifyOutput(cls)
	if *showPrompt {
		out.Prompt = pipeline.Prompts.Build(cls, text)
	}

	if *jsonOutput {
		return writeJSON(os.Stdout, out)
	}
	renderClassification(os.Stdout, out)
	return 0
}

func renderClassification(w io.Writer, out classifyOutput) {
	row := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+valueStyle.Render(value))
	}
	row("category", out.Category)
	row("confidence", fmt.Sprintf("%.2f", out.Confidence))
	row("style", out.Style)
	if len(out.Indicators) == 0 {
		fmt.Fprintln(w, labelStyle.Render("indicators")+dimStyle.Render("none"))
	} else {
		for i, ind := range out.Indicators {
			label := ""
			if i == 0 {
				label = "indicators"
			}
			row(label, ind)
		}
	}
	if out.LabPrompt {
		fmt.Fprintln(w, labelStyle.Render("")+warnStyle.Render("uses the lab skeleton prompt"))
	}
	if out.Prompt != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, chunkStyle.Render(out.Prompt))
	}
}

type askOutput struct {
	classifyOutput
	Kind   string   `json:"kind"`
	Chunks []string `json:"chunks"`
}

func handleAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	timeout := fs.Duration("timeout", 3*time.Minute, "Give up after this long")
	fs.Usage = func() {
		fmt.Println("Usage: snapdeck ask [options] [text|-]")
		fmt.Println()
		fmt.Println("Run one question through classify, query and chunking, and print")
		fmt.Println("the chunks the agent would paste. The clipboard is not touched.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 2
	}

	text, err := readInput(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if text == "" {
		fs.Usage()
		return 2
	}

	config.LoadEnvFiles()
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("config:"), cfgErr)
	}
	pipeline, err := pipelineFrom(cfg)
	if err != nil {
		pipeline = session.DefaultPipeline()
	}
	client := query.New(cfg.API.Key, queryOptions(cfg)...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := ask(ctx, client, pipeline, text, cfg.Delivery.ShortAnswerMax)
	if err != nil {
		if errors.Is(err, query.ErrMissingAPIKey) {
			fmt.Fprintf(os.Stderr, "%s set %s or add it to a .env file\n", errStyle.Render("Error:"), config.EnvAPIKey)
			return 1
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("Error:"), err)
		return 1
	}

	if *jsonOutput {
		return writeJSON(os.Stdout, out)
	}
	renderAnswer(os.Stdout, out)
	return 0
}

// ask runs the capture-free half of the agent pipeline.
func ask(ctx context.Context, q session.Querier, p *session.Pipeline, text string, shortMax int) (askOutput, error) {
	cls := p.Classifier.Classify(text)
	out := askOutput{classifyOutput: newClassifyOutput(cls)}

	answer, err := q.Query(ctx, p.Prompts.Build(cls, text))
	if err != nil {
		return out, err
	}
	plan, err := delivery.PlanResponse(cls.Category, answer, shortMax)
	if err != nil {
		return out, err
	}
	out.Kind = plan.Kind.String()
	out.Chunks = plan.Chunks
	return out, nil
}

func renderAnswer(w io.Writer, out askOutput) {
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s · %.2f · %s", out.Category, out.Confidence, out.Kind)))
	total := len(out.Chunks)
	for i, c := range out.Chunks {
		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("chunk %d/%d", i+1, total)))
		fmt.Fprintln(w, chunkStyle.Render(c))
	}
}

func handleInitConfig(args []string) int {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	printOnly := fs.Bool("print", false, "Print the example instead of writing it")
	fs.Usage = func() {
		fmt.Println("Usage: snapdeck init-config [options]")
		fmt.Println()
		fmt.Println("Write a commented config.toml with every default. An existing file is left alone.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 2
	}

	if *printOnly {
		fmt.Print(config.ExampleConfig)
		return 0
	}

	path, created, err := config.CreateExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errStyle.Render("Error:"), err)
		return 1
	}
	if !created {
		fmt.Printf("%s %s\n", warnStyle.Render("exists:"), formatPath(path))
		return 0
	}
	fmt.Printf("%s %s\n", okStyle.Render("created:"), formatPath(path))
	return 0
}

// loadPipeline builds the pipeline from the user's config, falling back to
// the built-in one if the config does not load.
func loadPipeline() (*session.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return session.DefaultPipeline(), err
	}
	p, err := pipelineFrom(cfg)
	if err != nil {
		return session.DefaultPipeline(), err
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
