package segment

import (
	"fmt"
	"github.com/getcharzp/volseg/volume"
)

// composite 将单帧的各目标 mask 合成为一张标签图
//
// 按模型返回的目标顺序依次写入, 后写入的目标覆盖先写入的目标。
func composite(out FrameMasks, width, height int) (*volume.Mask, error) {
	if len(out.ObjectIDs) != len(out.Masks) {
		return nil, fmt.Errorf("第 %d 帧目标数 (%d) 与 mask 数 (%d) 不一致", out.Frame, len(out.ObjectIDs), len(out.Masks))
	}
	m := volume.NewMask(width, height)
	for i, id := range out.ObjectIDs {
		if out.Masks[i] == nil {
			continue
		}
		if err := m.Paint(out.Masks[i], int32(id)); err != nil {
			return nil, fmt.Errorf("目标 %d: %w", id, err)
		}
	}
	return m, nil
}
