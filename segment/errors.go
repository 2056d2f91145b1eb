package segment

import "errors"

var (
	// ErrModelInitialization 模型或推理状态无法创建
	ErrModelInitialization = errors.New("模型初始化失败")
	// ErrModelInference 点提示推理失败, 标签体保持不变
	ErrModelInference = errors.New("模型推理失败")
	// ErrPropagation 传播过程中模型失败, 结果不会合并
	ErrPropagation = errors.New("传播失败")
	// ErrChannelResolution 引用的标签体或图层已不存在或不匹配
	ErrChannelResolution = errors.New("通道解析失败")
	// ErrBusy 会话已有正在执行的操作
	ErrBusy = errors.New("会话正忙")
)
