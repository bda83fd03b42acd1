package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	negerrors "github.com/negotium-ai/negotium/pkg/errors"
	"github.com/negotium-ai/negotium/pkg/llms"
	"github.com/negotium-ai/negotium/pkg/session"
)

const coordinatorSkillName = "coordinator"

// Tool names the coordinator's closed set (spec.md §4.4).
const (
	ToolAskAgent                 = "ask_agent"
	ToolStartDiscovery           = "start_discovery"
	ToolRecurseOnGap             = "recurse_on_gap"
	ToolRequestUserClarification = "request_user_clarification"
	ToolOutputPlan               = "output_plan"
)

// askAgentArgs, startDiscoveryArgs, etc. are reflected into JSON-schema
// tool parameter definitions via invopop/jsonschema, the same generic
// schema-from-struct-tags approach the teacher uses for its function
// tools (pkg/tool/functiontool/schema.go).
type askAgentArgs struct {
	AgentID  string `json:"agent_id" jsonschema:"required,description=Participant id to ask"`
	Question string `json:"question" jsonschema:"required,description=The follow-up question"`
}

type startDiscoveryArgs struct {
	Topic          string   `json:"topic" jsonschema:"required,description=The discovery topic"`
	ParticipantIDs []string `json:"participant_ids" jsonschema:"required,description=Subset of already-selected participant ids"`
}

type recurseOnGapArgs struct {
	Description string `json:"description" jsonschema:"required,description=The information gap to resolve"`
}

type requestUserClarificationArgs struct {
	Question string `json:"question" jsonschema:"required,description=Question to raise to the requester"`
}

type outputPlanArgs struct {
	Plan session.Plan `json:"plan" jsonschema:"required,description=The terminal structured plan"`
}

// ToolSchema is one entry of the coordinator's closed tool set, for use
// building an llms.ToolDefinition list.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// FullToolSet is every tool available in round 1.
func FullToolSet() []ToolSchema {
	return []ToolSchema{
		{ToolAskAgent, "Ask a named participant one additional question.", generateSchema[askAgentArgs]()},
		{ToolStartDiscovery, "Begin a scoped sub-negotiation over a subset of already-selected participants.", generateSchema[startDiscoveryArgs]()},
		{ToolRecurseOnGap, "Mark an information gap and schedule a nested mini-formulation on it.", generateSchema[recurseOnGapArgs]()},
		{ToolRequestUserClarification, "Raise a clarifying question to the requester.", generateSchema[requestUserClarificationArgs]()},
		{ToolOutputPlan, "Produce the terminal structured plan and end the loop.", generateSchema[outputPlanArgs]()},
	}
}

// RestrictedToolSet excludes discovery/recursion tools, per spec.md §4.6's
// round 2..M restriction.
func RestrictedToolSet() []ToolSchema {
	return []ToolSchema{
		{ToolAskAgent, "Ask a named participant one additional question.", generateSchema[askAgentArgs]()},
		{ToolRequestUserClarification, "Raise a clarifying question to the requester.", generateSchema[requestUserClarificationArgs]()},
		{ToolOutputPlan, "Produce the terminal structured plan and end the loop.", generateSchema[outputPlanArgs]()},
	}
}

// OutputPlanOnlyToolSet is the forced final call once the round budget is
// exhausted without a plan.
func OutputPlanOnlyToolSet() []ToolSchema {
	return []ToolSchema{
		{ToolOutputPlan, "Produce the terminal structured plan and end the loop.", generateSchema[outputPlanArgs]()},
	}
}

func toToolDefinitions(schemas []ToolSchema) []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, len(schemas))
	for i, s := range schemas {
		defs[i] = llms.ToolDefinition{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return defs
}

// generateSchema reflects T's json/jsonschema struct tags into a JSON
// Schema map, mirroring the teacher's generic schema-from-struct-tags
// helper. Reflection only ever runs over the five fixed tool-arg types
// above, so a reflection failure here would be a programming error, not a
// runtime condition to recover from — it panics rather than threading an
// error through every tool-schema accessor.
func generateSchema[T any]() map[string]interface{} {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("skills: marshal tool schema: %v", err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("skills: unmarshal tool schema: %v", err))
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// MaskOffers renders the redacted summary the coordinator sees from round
// 2 onward: agent id, confidence bucket, and first 12 words only — never
// the full offer text (spec.md §4.6's observation-masking requirement).
// discoveries folds any SubNegotiationFinding results under a
// "[discovery:<topic>]" labeled block so sub-negotiation output feeds back
// into the coordinator's view without ever exposing raw per-agent offers.
func MaskOffers(offers []session.Offer, discoveries map[string]session.SubNegotiationFinding) string {
	var b strings.Builder
	for _, o := range offers {
		status := "offered"
		if o.Declined {
			status = "declined"
		}
		fmt.Fprintf(&b, "- %s [%s, confidence=%s]: %s\n", o.AgentID, status, confidenceBucket(o.Confidence), firstWords(o.Text, 12))
	}
	for topic, finding := range discoveries {
		fmt.Fprintf(&b, "[discovery:%s] agreement=%q disagreement=%q open_questions=%v\n",
			topic, finding.Agreement, finding.Disagreement, finding.OpenQuestions)
	}
	if b.Len() == 0 {
		return "(no offers received)"
	}
	return b.String()
}

// CoordinatorInput is everything the Coordinator skill needs for one round.
type CoordinatorInput struct {
	Demand              session.FormulatedDemand
	Turns               []session.CoordinatorTurn
	Offers              []session.Offer
	Discoveries         map[string]session.SubNegotiationFinding
	Round               int
	Restricted          bool
	ForceOutputPlanOnly bool
}

// CoordinatorOutput is either a reasoning turn with tool calls, or a
// terminal plan (ToolCalls is empty and Plan is non-nil in that case).
type CoordinatorOutput struct {
	Reasoning string
	ToolCalls []session.ToolInvocation
	Plan      *session.Plan
}

type coordinatorToolCallArgs = map[string]interface{}

// RunCoordinator issues one coordinator round. On round 1 the full offer
// detail is visible in the prompt (not masked — that's the point of round
// 1); subsequent rounds see only MaskOffers' redacted summary plus prior
// reasoning, built entirely inside this skill so the engine cannot route
// around the masking by synthesising its own prompt (spec.md §4.6).
func RunCoordinator(ctx context.Context, central llms.Provider, in CoordinatorInput) (CoordinatorOutput, error) {
	tools := FullToolSet()
	switch {
	case in.ForceOutputPlanOnly:
		tools = OutputPlanOnlyToolSet()
	case in.Restricted:
		tools = RestrictedToolSet()
	}

	messages := buildCoordinatorMessages(in)
	text, toolCalls, _, err := central.Generate(ctx, messages, toToolDefinitions(tools))
	if err != nil {
		return CoordinatorOutput{}, negerrors.NewModelError(central.GetModelName(), coordinatorSkillName, err)
	}

	out := CoordinatorOutput{Reasoning: text}

	for _, tc := range toolCalls {
		if out.Plan != nil {
			break // output_plan immediately closes the loop; later calls in the same turn are ignored (spec.md tool dispatch rules)
		}
		if tc.Name == ToolOutputPlan {
			plan, perr := extractPlan(tc.Arguments)
			if perr != nil {
				return CoordinatorOutput{}, perr
			}
			out.Plan = plan
			continue
		}
		out.ToolCalls = append(out.ToolCalls, session.ToolInvocation{Name: tc.Name, Arguments: tc.Arguments})
	}

	return out, nil
}

func extractPlan(args coordinatorToolCallArgs) (*session.Plan, error) {
	raw, err := json.Marshal(args["plan"])
	if err != nil {
		return nil, negerrors.NewSkillContractViolation(coordinatorSkillName, "output_plan argument is not serializable", fmt.Sprintf("%v", args))
	}
	var plan session.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, negerrors.NewSkillContractViolation(coordinatorSkillName, "output_plan argument does not match Plan shape: "+err.Error(), string(raw))
	}
	if plan.Summary == "" {
		return nil, negerrors.NewSkillContractViolation(coordinatorSkillName, "plan summary is required and was empty", string(raw))
	}
	return &plan, nil
}

func buildCoordinatorMessages(in CoordinatorInput) []llms.Message {
	var sys strings.Builder
	sys.WriteString("You are the negotiation coordinator. You reason in bounded rounds and act only through your tools. ")
	if in.ForceOutputPlanOnly {
		sys.WriteString("The round budget is exhausted: you must call output_plan now with your best available plan.")
	} else if in.Restricted {
		sys.WriteString("This is a restricted round: you may only ask_agent, request_user_clarification, or output_plan.")
	} else {
		sys.WriteString("This is the opening round: you may use any tool.")
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Demand intent: %s\n", in.Demand.Intent)
	if len(in.Demand.Constraints) > 0 {
		fmt.Fprintf(&body, "Constraints: %s\n", strings.Join(in.Demand.Constraints, "; "))
	}

	if in.Round == 1 {
		body.WriteString("\nOffers received:\n")
		for _, o := range in.Offers {
			status := "offered"
			if o.Declined {
				status = "declined"
			}
			fmt.Fprintf(&body, "- %s [%s, confidence=%s]: %s\n", o.AgentID, status, floatToStr(o.Confidence), o.Text)
		}
	} else {
		body.WriteString("\nOffers (masked summary):\n")
		body.WriteString(MaskOffers(in.Offers, in.Discoveries))
	}

	body.WriteString("\nPrior reasoning:\n")
	for _, t := range in.Turns {
		fmt.Fprintf(&body, "Round %d: %s\n", t.Round, t.Reasoning)
	}

	return []llms.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: body.String()},
	}
}
