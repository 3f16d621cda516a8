package video

import (
	"math"

	"gocv.io/x/gocv"
)

// minFrameSide rejects thumbnails and partial decodes.
const minFrameSide = 64

// inspectJPEG decodes img and reports its size. ok is false for frames
// that are undecodable, tiny, or the flat gray/black an H264 decoder emits
// before the first keyframe.
func inspectJPEG(img []byte) (width, height int, ok bool) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return 0, 0, false
	}
	defer mat.Close()

	if mat.Empty() || mat.Cols() < minFrameSide || mat.Rows() < minFrameSide {
		return 0, 0, false
	}

	m := mat.Mean() // BGR
	b, g, r := m.Val1, m.Val2, m.Val3

	// Black
	if r < 30 && g < 30 && b < 30 {
		return mat.Cols(), mat.Rows(), false
	}

	// Uniform mid gray
	diff := math.Abs(r-g) + math.Abs(g-b) + math.Abs(r-b)
	if diff < 15 && r > 100 && r < 150 {
		mean, stddev := gocv.NewMat(), gocv.NewMat()
		defer mean.Close()
		defer stddev.Close()
		gocv.MeanStdDev(mat, &mean, &stddev)
		if stddev.GetDoubleAt(0, 0) < 4 {
			return mat.Cols(), mat.Rows(), false
		}
	}

	return mat.Cols(), mat.Rows(), true
}
