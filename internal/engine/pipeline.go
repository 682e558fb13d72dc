package engine

import "fmt"

// 各ソースのページ列は select → delete → reorder → rotate の順に変換される。
// ここでの関数はいずれも入力スライスを変更せず、新しいスライスを返す。

// applyDeletes は list の位置 deletes を取り除きます。すべての位置は削除前の list を基準に解釈します。
func applyDeletes(list []int, deletes []int) ([]int, error) {
	if len(deletes) == 0 {
		return append([]int(nil), list...), nil
	}

	drop := make(map[int]struct{}, len(deletes))
	for _, pos := range deletes {
		if pos < 0 || pos >= len(list) {
			return nil, &Error{
				Kind:  InvalidDeleteIndex,
				Index: pos,
				Err:   fmt.Errorf("valid positions are 0..%d", len(list)-1),
			}
		}
		drop[pos] = struct{}{}
	}

	kept := make([]int, 0, len(list)-len(drop))
	for pos, v := range list {
		if _, ok := drop[pos]; ok {
			continue
		}
		kept = append(kept, v)
	}
	return kept, nil
}

// applyReorder は reorder[k] 番目の要素を k 番目に置いた新しい列を返します。
// reorder は部分集合でもよく、参照されない要素は落とされます。
func applyReorder(list []int, reorder []int) ([]int, error) {
	if len(reorder) == 0 {
		return append([]int(nil), list...), nil
	}

	out := make([]int, len(reorder))
	for k, pos := range reorder {
		if pos < 0 || pos >= len(list) {
			return nil, &Error{
				Kind:  InvalidReorderIndex,
				Index: pos,
				Err:   fmt.Errorf("valid positions are 0..%d", len(list)-1),
			}
		}
		out[k] = list[pos]
	}
	return out, nil
}

// rotationAt は最終列の位置 j に指定された回転角を返します。未指定なら ok=false です。
func rotationAt(rotations []*int, j int) (int, bool) {
	if j >= len(rotations) || rotations[j] == nil {
		return 0, false
	}
	return *rotations[j], true
}

// Rotations は回転角の列を EditSpec.Rotations の形式に変換します。
func Rotations(degrees ...int) []*int {
	out := make([]*int, len(degrees))
	for i := range degrees {
		out[i] = &degrees[i]
	}
	return out
}
