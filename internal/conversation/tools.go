package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/internal/retrieval"
	"github.com/docbot-ai/platform/internal/schedule"
	"github.com/docbot-ai/platform/internal/timeparse"
	"github.com/docbot-ai/platform/pkg/logging"
)

// Tool is one callable action the planner may invoke: an argument schema,
// a human-readable purpose, and the handler that does the work. The
// catalogue is handed to the planner as data, never as behavior.
type Tool struct {
	Name        string
	Description string
	// Args maps argument name to its description; every argument is a
	// string. Required lists the ones that must be present.
	Args     map[string]string
	Required []string
	Handler  func(ctx context.Context, args map[string]string) (string, error)
}

// Catalog is the fixed set of tools bound to one bot's schedule store and
// retrieval index.
type Catalog struct {
	tools   map[string]Tool
	order   []string
	logger  *logging.Logger
	metrics *metrics.PlannerMetrics
}

// CatalogDeps carries the per-bot collaborators the tool handlers close over.
type CatalogDeps struct {
	Store     *schedule.Store
	Retrieval *retrieval.Service
	IndexDir  string
	TopK      int
	// Now supplies the caller's current time for future-biased parsing
	// and elapsed-slot filtering. Defaults to time.Now.
	Now     func() time.Time
	Logger  *logging.Logger
	Metrics *metrics.PlannerMetrics
}

const (
	escalationAdvisory = "A staff member has been notified and will reach out to you shortly to help directly."
	rescheduleAdvisory = "Rescheduling or canceling an existing appointment isn't supported here yet. Please contact the clinic directly and they will adjust it for you."
)

// NewCatalog builds the tool catalogue for one bot.
func NewCatalog(deps CatalogDeps) *Catalog {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.TopK <= 0 {
		deps.TopK = 5
	}

	c := &Catalog{
		tools:   make(map[string]Tool),
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}

	c.register(Tool{
		Name:        "check_availability",
		Description: "Check whether a specific date and time slot is open for an appointment. Requires both a date and a time that includes AM or PM.",
		Args: map[string]string{
			"date": "The appointment date, natural language or formatted.",
			"time": "The appointment time, including AM or PM.",
		},
		Required: []string{"date", "time"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			date, clock, obs := normalizeSlotArgs(args["date"], args["time"], deps.Now())
			if obs != "" {
				return obs, nil
			}
			status, err := deps.Store.CheckAvailability(ctx, date, clock)
			if err != nil {
				return "", err
			}
			switch status {
			case schedule.StatusBooked:
				return fmt.Sprintf("%s on %s is already booked.", clock, date), nil
			case schedule.StatusAvailable:
				return fmt.Sprintf("%s on %s is available.", clock, date), nil
			default:
				return "No such slot found.", nil
			}
		},
	})

	c.register(Tool{
		Name:        "book_appointment",
		Description: "Book an open appointment slot for a patient. Requires a date, a time including AM or PM, and the patient's name.",
		Args: map[string]string{
			"date":         "The appointment date, natural language or formatted.",
			"time":         "The appointment time, including AM or PM.",
			"patient_name": "Name of the patient the booking is for.",
		},
		Required: []string{"date", "time", "patient_name"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			date, clock, obs := normalizeSlotArgs(args["date"], args["time"], deps.Now())
			if obs != "" {
				return obs, nil
			}
			conf, err := deps.Store.Book(ctx, date, clock, args["patient_name"])
			switch {
			case errors.Is(err, schedule.ErrSlotNotFound):
				return "Slot not found.", nil
			case errors.Is(err, schedule.ErrAlreadyBooked):
				return "Slot is already booked.", nil
			case err != nil:
				return "", err
			}
			return fmt.Sprintf("Appointment booked for %s at %s on %s.", conf.PatientName, conf.Time, conf.Date), nil
		},
	})

	c.register(Tool{
		Name:        "list_free_slots",
		Description: "List every unbooked time slot on a given date, in clock order.",
		Args: map[string]string{
			"date": "The date to list open slots for, natural language or formatted.",
		},
		Required: []string{"date"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			now := deps.Now()
			date, err := timeparse.NormalizeDateAt(args["date"], now)
			if err != nil {
				return dateObservation(err), nil
			}
			times, err := deps.Store.ListFree(ctx, date, now)
			if err != nil {
				return "", err
			}
			if len(times) == 0 {
				return "No free slots available on that date.", nil
			}
			return strings.Join(times, "\n"), nil
		},
	})

	c.register(Tool{
		Name:        "get_datetime",
		Description: "Parse natural language like 'tomorrow at 9' into a standardized date and time. Use it when the user gives a combined or vague phrase.",
		Args: map[string]string{
			"text": "The natural language date/time phrase to interpret.",
		},
		Required: []string{"text"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			date, clock, err := timeparse.ParseDateTimeAt(args["text"], deps.Now())
			if err != nil {
				return "Could not understand the datetime. Please rephrase.", nil
			}
			return date + " " + clock, nil
		},
	})

	c.register(Tool{
		Name:        "lookup_context",
		Description: "Search the clinic's uploaded reference document for information relevant to the user's question, such as services, policies, or pricing.",
		Args: map[string]string{
			"query": "What to look up in the clinic's document.",
		},
		Required: []string{"query"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			if deps.Retrieval == nil {
				return "No reference document is available for this clinic.", nil
			}
			results, err := deps.Retrieval.Query(ctx, deps.IndexDir, args["query"], deps.TopK)
			if errors.Is(err, retrieval.ErrIndexNotReady) {
				return "No reference document has been indexed for this clinic yet.", nil
			}
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "Nothing relevant found in the clinic's document.", nil
			}
			var b strings.Builder
			for i, r := range results {
				fmt.Fprintf(&b, "%d. %s\n", i+1, r.Text)
			}
			return b.String(), nil
		},
	})

	c.register(Tool{
		Name:        "escalate_to_human",
		Description: "Hand the conversation to clinic staff when the user asks for a human or the assistant cannot help.",
		Args: map[string]string{
			"reason": "Why the conversation needs a human.",
		},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			return escalationAdvisory, nil
		},
	})

	c.register(Tool{
		Name:        "reschedule_appointment",
		Description: "Handle a request to reschedule or cancel an existing appointment.",
		Args: map[string]string{
			"details": "What the user wants to change.",
		},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			return rescheduleAdvisory, nil
		},
	})

	return c
}

func (c *Catalog) register(t Tool) {
	c.tools[t.Name] = t
	c.order = append(c.order, t.Name)
}

// Specs renders the catalogue as planner-facing tool definitions.
func (c *Catalog) Specs() []openai.Tool {
	specs := make([]openai.Tool, 0, len(c.order))
	for _, name := range c.order {
		t := c.tools[name]
		properties := make(map[string]any, len(t.Args))
		for arg, desc := range t.Args {
			properties[arg] = map[string]any{"type": "string", "description": desc}
		}
		required := t.Required
		if required == nil {
			required = []string{}
		}
		specs = append(specs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return specs
}

// Dispatch validates a planner tool invocation and runs it. Expected
// business conditions come back as observations for the planner to relay;
// only unexpected failures (storage, network) return a non-nil error.
func (c *Catalog) Dispatch(ctx context.Context, name, rawArgs string) (string, error) {
	tool, ok := c.tools[name]
	if !ok {
		c.metrics.ObserveToolCall(name, "unknown")
		return fmt.Sprintf("Unknown tool %q.", name), nil
	}

	args, problem := decodeArgs(tool, rawArgs)
	if problem != "" {
		// Never silently default a missing argument; tell the planner
		// so it can ask the user.
		c.metrics.ObserveToolCall(name, "invalid")
		return problem, nil
	}

	obs, err := tool.Handler(ctx, args)
	if err != nil {
		c.metrics.ObserveToolCall(name, "error")
		c.logger.Error("tool execution failed", "tool", name, "error", err)
		return "", err
	}
	c.metrics.ObserveToolCall(name, "ok")
	return obs, nil
}

func decodeArgs(tool Tool, rawArgs string) (map[string]string, string) {
	decoded := make(map[string]any)
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &decoded); err != nil {
			return nil, "Tool arguments were not valid JSON. Please try again."
		}
	}

	args := make(map[string]string, len(decoded))
	for key, value := range decoded {
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("Argument %q must be a string.", key)
		}
		args[key] = str
	}
	for _, required := range tool.Required {
		if strings.TrimSpace(args[required]) == "" {
			return nil, fmt.Sprintf("Missing required argument %q. Please ask the user for it.", required)
		}
	}
	return args, ""
}

// normalizeSlotArgs canonicalizes a (date, time) pair, returning a
// user-recoverable observation when either cannot be resolved. Parse
// failures stop here; they never reach the schedule store.
func normalizeSlotArgs(rawDate, rawTime string, now time.Time) (date, clock, observation string) {
	date, err := timeparse.NormalizeDateAt(rawDate, now)
	if err != nil {
		return "", "", dateObservation(err)
	}
	clock, err = timeparse.NormalizeTime(rawTime)
	if err != nil {
		if errors.Is(err, timeparse.ErrAmbiguousMeridiem) {
			return "", "", "Please specify AM or PM in the time provided."
		}
		return "", "", "Couldn't understand the time format. Please rephrase (e.g., '9:00 AM')."
	}
	return date, clock, ""
}

func dateObservation(err error) string {
	return "Couldn't understand the date. Please rephrase (e.g., 'next Friday' or '2025-06-01')."
}
