/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package media

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/vestryhq/vestry/cms"
	"go.uber.org/zap"
)

// StartVips initializes libvips. Call once at program start;
// ShutdownVips must be called for a clean exit.
func StartVips() {
	vips.LoggingSettings(nil, vips.LogLevelError)
	vips.Startup(nil)
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vips.Shutdown()
}

// VipsNormalizer converts HEIC/HEIF input to JPEG using libvips.
// Files with any other suffix pass through unmodified.
type VipsNormalizer struct {
	Log *zap.Logger
}

// jpegQuality is fixed at a moderate setting: these are gallery uploads,
// not archival masters.
const jpegQuality = 50

func (n VipsNormalizer) Normalize(f cms.File) (cms.File, error) {
	if !NeedsConversion(f.Name) {
		return f, nil
	}

	importParams := vips.NewImportParams()
	// tolerate slightly-corrupt input the same way browsers do
	importParams.FailOnError.Set(false)
	// apply EXIF rotation now, before metadata is stripped by the export
	importParams.AutoRotate.Set(true)

	img, err := vips.LoadImageFromBuffer(f.Data, importParams)
	if err != nil {
		return cms.File{}, fmt.Errorf("decoding %s: %w", f.Name, err)
	}
	defer img.Close()

	ep := vips.NewJpegExportParams()
	ep.Quality = jpegQuality
	ep.Interlace = true
	ep.SubsampleMode = vips.VipsForeignSubsampleAuto

	jpegBytes, _, err := img.ExportJpeg(ep)
	if err != nil {
		return cms.File{}, fmt.Errorf("encoding %s as JPEG: %w", f.Name, err)
	}

	if n.Log != nil {
		n.Log.Debug("converted image for web display",
			zap.String("filename", f.Name),
			zap.Int("original_size", len(f.Data)),
			zap.Int("converted_size", len(jpegBytes)))
	}

	return cms.File{Name: ConvertedName(f.Name), Data: jpegBytes}, nil
}
