package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"receiving-engine/internal/app"
)

const usage = "Available: create, update <delivery-id>, reconcile <delivery-id>, credit <order-item-id>, show <delivery-id>"

// Run executes a one-shot CLI command. args is os.Args[1:], the first element is the
// subcommand name. Requests are JSON on in; results are JSON on out.
func Run(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	switch args[0] {
	case "create", "new":
		var req app.RecordDeliveryRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		result, err := svc.RecordDelivery(ctx, req)
		if err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
		return encode(out, result)

	case "update", "correct":
		if len(args) < 2 {
			return fmt.Errorf("usage: app update <delivery-id> < correction.json")
		}
		var req app.CorrectDeliveryRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		req.DeliveryID = args[1]
		result, err := svc.CorrectDelivery(ctx, req)
		if err != nil {
			return fmt.Errorf("correct delivery: %w", err)
		}
		return encode(out, result)

	case "reconcile", "rec":
		if len(args) < 2 {
			return fmt.Errorf("usage: app reconcile <delivery-id>")
		}
		result, err := svc.ReconcilePayables(ctx, args[1])
		if err != nil {
			return fmt.Errorf("reconcile payables: %w", err)
		}
		return encode(out, result)

	case "credit":
		if len(args) < 2 {
			return fmt.Errorf("usage: app credit <order-item-id> < credit.json")
		}
		var req app.ApplyCreditRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		req.OrderItemID = args[1]
		result, err := svc.ApplyCredit(ctx, req)
		if err != nil {
			return fmt.Errorf("apply credit: %w", err)
		}
		return encode(out, result)

	case "show", "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: app show <delivery-id>")
		}
		result, err := svc.GetDelivery(ctx, args[1])
		if err != nil {
			return fmt.Errorf("get delivery: %w", err)
		}
		return encode(out, result)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

func decode(in io.Reader, v any) error {
	if err := json.NewDecoder(in).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func encode(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
