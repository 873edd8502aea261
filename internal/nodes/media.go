package nodes

import (
	"context"
	"fmt"
	"math"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

var (
	imageInputKeys = []string{"image_url", "image", graph.DefaultHandle}
	videoInputKeys = []string{"video_url", "video", graph.DefaultHandle}
)

// firstInput returns the first non-empty upstream value among keys, falling
// back to the node's own data field.
func firstInput(node graph.Node, inputs graph.Inputs, keys []string, dataKey string) string {
	for _, k := range keys {
		if urls := stringList(inputs[k]); len(urls) > 0 {
			return urls[0]
		}
	}
	return NormalizeOutput(node.String(dataKey))
}

// percent reads a crop percentage from the inputs first, then the node data.
func percent(node graph.Node, inputs graph.Inputs, inputKey, dataKey string, def float64) (float64, error) {
	raw, ok := inputs[inputKey]
	if !ok || raw == nil {
		raw, ok = node.Data[dataKey]
	}
	if !ok || raw == nil || raw == "" {
		return def, nil
	}
	f, err := graph.ToFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", dataKey, err)
	}
	if math.IsNaN(f) || f < 0 || f > 100 {
		return 0, fmt.Errorf("%s must be between 0 and 100, got %v", dataKey, f)
	}
	return f, nil
}

func cropRequest(node graph.Node, inputs graph.Inputs) (CropRequest, error) {
	req := CropRequest{ImageURL: firstInput(node, inputs, imageInputKeys, "imageUrl")}
	if req.ImageURL == "" {
		return req, validationError("Crop node requires an image: connect an image to the image input")
	}

	var err error
	fields := []struct {
		dst      *float64
		input    string
		data     string
		fallback float64
	}{
		{&req.XPercent, "x_percent", "xPercent", 0},
		{&req.YPercent, "y_percent", "yPercent", 0},
		{&req.WidthPercent, "width_percent", "widthPercent", 100},
		{&req.HeightPercent, "height_percent", "heightPercent", 100},
	}
	for _, f := range fields {
		if *f.dst, err = percent(node, inputs, f.input, f.data, f.fallback); err != nil {
			return req, validationError("Invalid crop: " + err.Error())
		}
	}
	if req.WidthPercent == 0 || req.HeightPercent == 0 {
		return req, validationError("Invalid crop: width and height must be greater than 0")
	}
	if req.XPercent+req.WidthPercent > 100 {
		req.WidthPercent = 100 - req.XPercent
	}
	if req.YPercent+req.HeightPercent > 100 {
		req.HeightPercent = 100 - req.YPercent
	}
	if req.WidthPercent <= 0 || req.HeightPercent <= 0 {
		return req, validationError("Invalid crop: region lies outside the image")
	}
	return req, nil
}

func (e *Executor) executeCrop(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error) {
	req, err := cropRequest(node, inputs)
	if err != nil {
		return nil, err
	}
	if e.media == nil {
		return nil, &NodeError{Kind: KindExternal, Message: "media service is not configured"}
	}

	out, err := callWithRetry(ctx, e, node, func(ctx context.Context) (string, error) {
		return e.media.Crop(ctx, req)
	})
	if err != nil {
		return nil, externalFailure("Crop", 0, err)
	}
	return NormalizeOutput(out), nil
}

func (e *Executor) executeExtract(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error) {
	videoURL := firstInput(node, inputs, videoInputKeys, "videoUrl")
	if videoURL == "" {
		return nil, validationError("Extract node requires a video: connect a video to the video input")
	}

	raw, ok := inputs["timestamp"]
	if !ok || raw == nil {
		raw = node.Data["timestamp"]
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return nil, validationError("Invalid timestamp: " + err.Error())
	}
	if e.media == nil {
		return nil, &NodeError{Kind: KindExternal, Message: "media service is not configured"}
	}

	var duration float64
	if ts.Percent {
		duration, err = callWithRetry(ctx, e, node, func(ctx context.Context) (float64, error) {
			return e.media.Duration(ctx, videoURL)
		})
		if err != nil {
			return nil, externalFailure("Reading video duration", 0, err)
		}
	}
	seconds, err := ts.Seconds(duration)
	if err != nil {
		return nil, validationError("Invalid timestamp: " + err.Error())
	}

	req := ExtractRequest{VideoURL: videoURL, Timestamp: seconds}
	out, err := callWithRetry(ctx, e, node, func(ctx context.Context) (string, error) {
		return e.media.ExtractFrame(ctx, req)
	})
	if err != nil {
		return nil, externalFailure("Frame extraction", 0, err)
	}
	return NormalizeOutput(out), nil
}
