package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"atelier/pkg/imagegen"
	"atelier/pkg/llm"
	"atelier/pkg/models"
	"atelier/pkg/stream"
)

// maxToolIterations bounds the generate → tool → generate loop per turn.
const maxToolIterations = 2

const (
	toolExportPDF     = "export_pdf"
	toolExportDOCX    = "export_docx"
	toolGenerateImage = "generate_image"
)

var exportParams = json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"}},"required":["content"]}`)
var imageParams = json.RawMessage(`{"type":"object","properties":{"prompt":{"type":"string"},"width":{"type":"integer"},"height":{"type":"integer"},"count":{"type":"integer"}},"required":["prompt"]}`)

func (o *Orchestrator) toolSpecs() []llm.Tool {
	var out []llm.Tool
	if o.Exporter != nil {
		out = append(out,
			llm.Tool{Name: toolExportPDF, Description: "Save content as a downloadable PDF document", Parameters: exportParams},
			llm.Tool{Name: toolExportDOCX, Description: "Save content as a downloadable DOCX document", Parameters: exportParams},
		)
	}
	if o.Images != nil {
		out = append(out, llm.Tool{Name: toolGenerateImage, Description: "Generate one or more images from a prompt", Parameters: imageParams})
	}
	return out
}

// toolOutcome is what executing one tool call produced: the stream event
// to emit, the attachment for the assistant message, and the feedback
// text handed back to the model.
type toolOutcome struct {
	event      stream.Event
	attachment models.SideEffectResult
	feedback   string
}

func (o *Orchestrator) execTool(ctx context.Context, tc llm.ToolCall, projectKey string) toolOutcome {
	switch tc.Name {
	case toolExportPDF, toolExportDOCX:
		return o.execExport(tc)
	case toolGenerateImage:
		return o.execImage(ctx, tc, projectKey)
	}
	msg := fmt.Sprintf("tool %q is not allowed", tc.Name)
	return toolOutcome{
		event: stream.Error(msg),
		attachment: models.SideEffectResult{
			Kind: models.SideEffectDocument, Status: models.SideEffectFailed, ID: tc.ID, Error: msg,
		},
		feedback: msg,
	}
}

func (o *Orchestrator) execExport(tc llm.ToolCall) toolOutcome {
	eventType := stream.EventPDFSaved
	if tc.Name == toolExportDOCX {
		eventType = stream.EventDocxSaved
	}
	var args struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return exportFailure(eventType, tc.ID, fmt.Sprintf("invalid %s arguments: %v", tc.Name, err))
	}
	if o.Exporter == nil {
		return exportFailure(eventType, tc.ID, "document export is not configured")
	}
	var name string
	var err error
	if tc.Name == toolExportPDF {
		name, err = o.Exporter.ExportPDF(args.Title, args.Content)
	} else {
		name, err = o.Exporter.ExportDOCX(args.Title, args.Content)
	}
	if err != nil {
		return exportFailure(eventType, tc.ID, err.Error())
	}
	url := "/downloads/" + name
	return toolOutcome{
		event: stream.JSONEvent(eventType, stream.ExportPayload{ID: tc.ID, Filename: name, DownloadURL: url}),
		attachment: models.SideEffectResult{
			Kind: models.SideEffectDocument, Status: models.SideEffectCompleted, ID: tc.ID, Locator: url,
		},
		feedback: fmt.Sprintf("saved %s, available at %s", name, url),
	}
}

func exportFailure(eventType, id, msg string) toolOutcome {
	return toolOutcome{
		event: stream.JSONEvent(eventType, stream.ExportPayload{ID: id, Error: msg}),
		attachment: models.SideEffectResult{
			Kind: models.SideEffectDocument, Status: models.SideEffectFailed, ID: id, Error: msg,
		},
		feedback: "export failed: " + msg,
	}
}

func (o *Orchestrator) execImage(ctx context.Context, tc llm.ToolCall, projectKey string) toolOutcome {
	var args struct {
		Prompt string `json:"prompt"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Count  int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return imageFailure(tc.ID, fmt.Sprintf("invalid generate_image arguments: %v", err))
	}
	if o.Images == nil {
		return imageFailure(tc.ID, "image generation is not configured")
	}
	res, err := o.Images.Generate(ctx, args.Prompt, imagegen.Options{
		Width: args.Width, Height: args.Height, Count: args.Count, ProjectKey: projectKey,
	})
	if err != nil {
		return imageFailure(tc.ID, err.Error())
	}
	url := ""
	if len(res.URLs) > 0 {
		url = res.URLs[0]
	}
	return toolOutcome{
		event: stream.JSONEvent(stream.EventImageGenerated, stream.ImagePayload{ID: tc.ID, URL: url, Prompt: args.Prompt}),
		attachment: models.SideEffectResult{
			Kind: models.SideEffectImage, Status: models.SideEffectCompleted, ID: tc.ID, Locator: url,
		},
		feedback: fmt.Sprintf("generated %d image(s): %v", len(res.URLs), res.URLs),
	}
}

func imageFailure(id, msg string) toolOutcome {
	return toolOutcome{
		event: stream.JSONEvent(stream.EventImageGenerated, stream.ImagePayload{ID: id, Error: msg}),
		attachment: models.SideEffectResult{
			Kind: models.SideEffectImage, Status: models.SideEffectFailed, ID: id, Error: msg,
		},
		feedback: "image generation failed: " + msg,
	}
}
