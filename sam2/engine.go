package sam2

import (
	"fmt"
	ort "github.com/getcharzp/onnxruntime_purego"
	"github.com/getcharzp/volseg"
	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
	"image"
	"runtime"
)

var embeddingNames = []string{"image_embeddings.0", "image_embeddings.1", "image_embeddings.2"}

// Engine 持有 ONNX Session，负责创建 ImageContext
type Engine struct {
	encoderSession *ort.Session
	decoderSession *ort.Session
	config         Config
}

// NewEngine 初始化 sam2 引擎
func NewEngine(cfg Config) (*Engine, error) {
	oc := new(volseg.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, oc); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := oc.New(); err != nil {
		return nil, err
	}

	encSession, err := oc.OnnxEngine.NewSession(cfg.EncodeModelPath, oc.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}
	decSession, err := oc.OnnxEngine.NewSession(cfg.DecodeModelPath, oc.SessionOptions)
	if err != nil {
		encSession.Destroy()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	return &Engine{
		encoderSession: encSession,
		decoderSession: decSession,
		config:         cfg,
	}, nil
}

// Destroy 释放相关资源
func (e *Engine) Destroy() {
	if e.encoderSession != nil {
		e.encoderSession.Destroy()
	}
	if e.decoderSession != nil {
		e.decoderSession.Destroy()
	}
}

// ImageContext 包含特定图像的特征缓存和参数
type ImageContext struct {
	engine          *Engine
	imageEmbeddings map[string]*ort.Value

	origW, origH int
	scale        float32
	newW, newH   int
	isDestroyed  bool
}

// EncodeImage 图像特征提取
func (e *Engine) EncodeImage(img image.Image) (*ImageContext, error) {
	// 预处理
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	scale := float32(inputSize) / float32(max(origW, origH))
	newW := int(float32(origW) * scale)
	newH := int(float32(origH) * scale)

	resizedImg := imageutil.Resize(img, newW, newH)
	tensorData := normalizeAndPad(resizedImg, inputSize, inputSize)

	inputTensor, err := ort.NewTensor([]int64{1, 3, inputSize, inputSize}, tensorData)
	if err != nil {
		return nil, fmt.Errorf("创建图片 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	// Encoder 推理
	outputs, err := e.encoderSession.Run(map[string]*ort.Value{"pixel_values": inputTensor})
	if err != nil {
		return nil, fmt.Errorf("encoder 推理失败: %w", err)
	}
	embeddings := make(map[string]*ort.Value, len(embeddingNames))
	for name, v := range outputs {
		embeddings[name] = v
	}
	for _, name := range embeddingNames {
		if embeddings[name] == nil {
			for _, v := range embeddings {
				v.Destroy()
			}
			return nil, fmt.Errorf("encoder 缺少输出 %s", name)
		}
	}

	ctx := &ImageContext{
		engine:          e,
		imageEmbeddings: embeddings,
		origW:           origW,
		origH:           origH,
		scale:           scale,
		newW:            newW,
		newH:            newH,
	}

	// 设置 Finalizer 以防用户忘记 Destroy
	runtime.SetFinalizer(ctx, func(c *ImageContext) { c.Destroy() })

	return ctx, nil
}

// Destroy 释放图像特征缓存
func (ctx *ImageContext) Destroy() {
	if ctx.isDestroyed {
		return
	}
	for _, v := range ctx.imageEmbeddings {
		if v != nil {
			v.Destroy()
		}
	}
	ctx.imageEmbeddings = nil
	ctx.isDestroyed = true
}

// Size 原图尺寸
func (ctx *ImageContext) Size() (width, height int) {
	return ctx.origW, ctx.origH
}

// Result Mask 预测结果
type Result struct {
	Mask   []uint8 // 0 or 255
	Score  float32
	Width  int
	Height int
}

// DecodeRaw Mask解码并返回原始结果
func (ctx *ImageContext) DecodeRaw(points []Point) (*Result, error) {
	if ctx.isDestroyed {
		return nil, fmt.Errorf("图片特征已销毁")
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("至少需要一个提示点")
	}

	// 坐标转换
	coords := make([]float32, 0, len(points)*2)
	labels := make([]int64, 0, len(points))
	for _, pt := range points {
		coords = append(coords, pt.X*ctx.scale, pt.Y*ctx.scale)
		labels = append(labels, int64(pt.Label))
	}
	numPoints := int64(len(points))

	// 准备 Decoder Tensors
	tPoints, err := ort.NewTensor([]int64{1, 1, numPoints, 2}, coords)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Points Tensor 失败: %w", err)
	}
	defer tPoints.Destroy()

	tLabels, err := ort.NewTensor([]int64{1, 1, numPoints}, labels)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Labels Tensor 失败: %w", err)
	}
	defer tLabels.Destroy()

	inputs := map[string]*ort.Value{
		"input_points": tPoints,
		"input_labels": tLabels,
	}
	for _, name := range embeddingNames {
		inputs[name] = ctx.imageEmbeddings[name]
	}

	// box 通过 point 控制, 模型声明了 input_boxes 时传入空框
	if hasInput(ctx.engine.decoderSession.InputNames, "input_boxes") {
		shape, data := emptyBoxes()
		tBoxes, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("创建 Decoder Boxes Tensor 失败: %w", err)
		}
		defer tBoxes.Destroy()
		inputs["input_boxes"] = tBoxes
	}

	// Decoder 推理
	outputs, err := ctx.engine.decoderSession.Run(inputs)
	if err != nil {
		return nil, fmt.Errorf("decoder 推理失败: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			o.Destroy()
		}
	}()

	// 获取最佳 Mask
	rawScores, err := ort.GetTensorData[float32](outputs["iou_scores"])
	if err != nil {
		return nil, fmt.Errorf("获取 iou_scores 失败: %w", err)
	}
	rawMasks, err := ort.GetTensorData[float32](outputs["pred_masks"])
	if err != nil {
		return nil, fmt.Errorf("获取 pred_masks 失败: %w", err)
	}

	bestIdx := 0
	bestScore := float32(-100.0)
	for i := 0; i < len(rawScores); i++ {
		if rawScores[i] > bestScore {
			bestScore = rawScores[i]
			bestIdx = i
		}
	}

	// 提取对应的 Mask Logits (256x256)
	pixelsPerMask := maskDim * maskDim
	start := bestIdx * pixelsPerMask
	end := start + pixelsPerMask
	if end > len(rawMasks) {
		return nil, fmt.Errorf("pred_masks 长度 %d 不足", len(rawMasks))
	}
	bestMaskLogits := rawMasks[start:end]

	validMaskW := int(float32(ctx.newW) / 4.0)
	validMaskH := int(float32(ctx.newH) / 4.0)

	finalMask := upscaleMaskLogits(bestMaskLogits, maskDim, validMaskW, validMaskH, ctx.origW, ctx.origH)

	return &Result{
		Mask:   finalMask,
		Score:  bestScore,
		Width:  ctx.origW,
		Height: ctx.origH,
	}, nil
}

// Decode Mask解码并返回图片
func (ctx *ImageContext) Decode(points []Point) (*image.Gray, float32, error) {
	result, err := ctx.DecodeRaw(points)
	if err != nil {
		return nil, 0, err
	}

	img := image.NewGray(image.Rect(0, 0, result.Width, result.Height))
	copy(img.Pix, result.Mask)
	return img, result.Score, nil
}
