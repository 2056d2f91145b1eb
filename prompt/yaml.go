package prompt

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

type objectDoc struct {
	ID     int        `yaml:"id"`
	Frames []frameDoc `yaml:"frames"`
}

type frameDoc struct {
	Frame      int         `yaml:"frame"`
	Points     [][]float32 `yaml:"points,flow"` // [x, y]
	Polarities []Polarity  `yaml:"polarities,flow"`
}

type ledgerDoc struct {
	Objects []objectDoc `yaml:"objects"`
}

// MarshalYAML 按账本顺序序列化
func (l *Ledger) MarshalYAML() (any, error) {
	var doc ledgerDoc
	for _, h := range l.objects {
		od := objectDoc{ID: h.objectID}
		for _, e := range h.entries {
			fd := frameDoc{Frame: e.Frame, Polarities: e.Polarities}
			for _, p := range e.Points {
				fd.Points = append(fd.Points, []float32{p.X, p.Y})
			}
			od.Frames = append(od.Frames, fd)
		}
		doc.Objects = append(doc.Objects, od)
	}
	return doc, nil
}

// UnmarshalYAML 通过逐点 Add 重建账本, 重复的 (目标, 帧) 会合并
func (l *Ledger) UnmarshalYAML(node *yaml.Node) error {
	var doc ledgerDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	l.Clear()
	for _, od := range doc.Objects {
		for _, fd := range od.Frames {
			if len(fd.Points) != len(fd.Polarities) {
				return fmt.Errorf("目标 %d 第 %d 帧的点数 (%d) 与极性数 (%d) 不一致",
					od.ID, fd.Frame, len(fd.Points), len(fd.Polarities))
			}
			for i, p := range fd.Points {
				if len(p) != 2 {
					return fmt.Errorf("目标 %d 第 %d 帧的点坐标必须为 [x, y]", od.ID, fd.Frame)
				}
				pol := fd.Polarities[i]
				if pol != Negative && pol != Positive {
					return fmt.Errorf("非法的极性: %d", pol)
				}
				l.Add(od.ID, fd.Frame, Point{X: p[0], Y: p[1]}, pol)
			}
		}
	}
	return nil
}

// LoadFile 从 YAML 文件读取账本
func LoadFile(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取提示文件失败: %w", err)
	}
	l := NewLedger()
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("解析提示文件失败: %w", err)
	}
	return l, nil
}

// SaveFile 将账本写为 YAML 文件
func SaveFile(path string, l *Ledger) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("序列化提示失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入提示文件失败: %w", err)
	}
	return nil
}
