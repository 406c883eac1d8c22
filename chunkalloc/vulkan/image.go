package vulkan

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/chunkmem/chunkalloc"
	"github.com/vkngwrapper/chunkmem/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

// ImageOptions describes the memory an ImageBackend creates for its chunks
type ImageOptions struct {
	// Template is a representative image. Its memory requirements decide the chunk memory type and
	// alignment, so every image placed in the allocator must be compatible with it.
	Template core1_0.ImageCreateInfo `json:"-"`
	// MemoryProperties are the property flags the chunk memory type must have
	MemoryProperties core1_0.MemoryPropertyFlags `json:"memoryProperties"`
	// Priority is passed to VK_EXT_memory_priority when it is active. It must be between 0 and 1.
	Priority float32 `json:"priority"`

	AllocationCallbacks *driver.AllocationCallbacks `json:"-"`
}

// ImageDescription is everything needed to create an image and its companions. View.Image is
// filled in when the image is created. View and Sampler are optional.
type ImageDescription struct {
	Image   core1_0.ImageCreateInfo
	View    *core1_0.ImageViewCreateInfo
	Sampler *core1_0.SamplerCreateInfo
}

// ImageData is the payload of an image location: the image bound at the location's offset, along
// with the view and sampler created for it. A relocation replaces all three.
type ImageData struct {
	Image       core1_0.Image
	View        core1_0.ImageView
	Sampler     core1_0.Sampler
	Description ImageDescription
}

// ImageChunk is a device memory allocation that images are bound into
type ImageChunk struct {
	memory core1_0.DeviceMemory
	size   int
}

var _ chunkalloc.Memory = &ImageChunk{}

func (c *ImageChunk) Size() int {
	return c.size
}

// MappedData is always nil, image memory is never mapped
func (c *ImageChunk) MappedData() unsafe.Pointer {
	return nil
}

func (c *ImageChunk) DeviceMemory() core1_0.DeviceMemory {
	return c.memory
}

// ImageBackend creates ImageChunk memory for an Allocator and manages the images bound into it
type ImageBackend struct {
	logger  *slog.Logger
	device  core1_0.Device
	safe    *chunkalloc.SafeAllocator
	options ImageOptions

	memoryTypeIndex int
	alignment       int
	usePriority     bool
}

var _ chunkalloc.Backend[*ImageData] = &ImageBackend{}

// NewImageBackend picks a memory type for images like options.Template. Chunk memory is allocated
// through safe, which should be shared with every other backend on the same device; if it is nil,
// a new one is created.
func NewImageBackend(
	logger *slog.Logger,
	device core1_0.Device,
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	safe *chunkalloc.SafeAllocator,
	options ImageOptions,
) (*ImageBackend, error) {
	err := checkPriority(options.Priority)
	if err != nil {
		return nil, err
	}

	template, _, err := device.CreateImage(options.AllocationCallbacks, options.Template)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create an image to query memory requirements")
	}
	requirements := template.MemoryRequirements()
	template.Destroy(options.AllocationCallbacks)

	err = memutils.CheckPow2(requirements.Alignment, "image memory alignment")
	if err != nil {
		return nil, err
	}

	memoryTypeIndex, err := FindMemoryType(memoryProperties, requirements.MemoryTypeBits, options.MemoryProperties)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	if safe == nil {
		safe = chunkalloc.NewSafeAllocator()
	} else {
		safe.Ref()
	}

	return &ImageBackend{
		logger:  logger,
		device:  device,
		safe:    safe,
		options: options,

		memoryTypeIndex: memoryTypeIndex,
		alignment:       requirements.Alignment,
		usePriority:     UseMemoryPriority(device),
	}, nil
}

// Alignment is the template image's alignment requirement. Allocators using this backend should set
// CreateOptions.Alignment to at least this value, so that every location offset is a valid image
// binding offset.
func (b *ImageBackend) Alignment() int {
	return b.alignment
}

func (b *ImageBackend) MemoryTypeIndex() int {
	return b.memoryTypeIndex
}

func (b *ImageBackend) CreateChunk(size int) (chunkalloc.Memory, error) {
	allocInfo := memoryAllocateInfo(b.usePriority, b.options.Priority, b.memoryTypeIndex, size)

	var memory core1_0.DeviceMemory
	err := b.safe.Allocate(func() error {
		var allocErr error
		memory, _, allocErr = b.device.AllocateMemory(b.options.AllocationCallbacks, allocInfo)
		return allocErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes of device memory", size)
	}

	b.logger.LogAttrs(context.Background(), slog.LevelDebug, "Created image chunk",
		slog.Int("size", size),
		slog.Int("memoryTypeIndex", b.memoryTypeIndex),
	)

	return &ImageChunk{memory: memory, size: size}, nil
}

func (b *ImageBackend) DestroyChunk(memory chunkalloc.Memory) error {
	chunk, ok := memory.(*ImageChunk)
	if !ok || chunk == nil {
		return errors.Newf("attempted to destroy memory of type %T that was not created by an image backend", memory)
	}

	if chunk.memory == nil {
		return errors.New("attempted to destroy an image chunk twice")
	}

	chunk.memory.Free(b.options.AllocationCallbacks)
	chunk.memory = nil
	return nil
}

// ReleaseData destroys the location's image, view, and sampler
func (b *ImageBackend) ReleaseData(location *chunkalloc.Location[*ImageData]) error {
	b.destroyImageData(location.Data())
	return nil
}

func (b *ImageBackend) PostMove(location *chunkalloc.Location[*ImageData]) error {
	data := location.Data()
	if data == nil || data.Image == nil {
		return errors.Newf("%s was moved without an image to take its place", location)
	}

	return nil
}

// Close drops the backend's reference to its SafeAllocator
func (b *ImageBackend) Close() {
	b.safe.Release()
}

func (b *ImageBackend) destroyImageData(data *ImageData) {
	if data == nil {
		return
	}

	if data.Sampler != nil {
		data.Sampler.Destroy(b.options.AllocationCallbacks)
		data.Sampler = nil
	}
	if data.View != nil {
		data.View.Destroy(b.options.AllocationCallbacks)
		data.View = nil
	}
	if data.Image != nil {
		data.Image.Destroy(b.options.AllocationCallbacks)
		data.Image = nil
	}
}

// createImageData creates the described image bound to memory at offset, along with its view and
// sampler
func (b *ImageBackend) createImageData(description ImageDescription, memory chunkalloc.Memory, offset int) (*ImageData, error) {
	chunk, ok := memory.(*ImageChunk)
	if !ok || chunk.memory == nil {
		return nil, errors.Newf("cannot bind an image to memory of type %T", memory)
	}

	data := &ImageData{Description: description}

	var err error
	data.Image, _, err = b.device.CreateImage(b.options.AllocationCallbacks, description.Image)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image")
	}

	requirements := data.Image.MemoryRequirements()
	if offset%requirements.Alignment != 0 || offset+requirements.Size > chunk.size {
		b.destroyImageData(data)
		return nil, errors.Newf("image requiring %d bytes aligned to %d cannot be bound at offset %d of a %d-byte chunk",
			requirements.Size, requirements.Alignment, offset, chunk.size)
	}

	_, err = data.Image.BindImageMemory(chunk.memory, offset)
	if err != nil {
		b.destroyImageData(data)
		return nil, errors.Wrap(err, "failed to bind image memory")
	}

	if description.View != nil {
		viewInfo := *description.View
		viewInfo.Image = data.Image

		data.View, _, err = b.device.CreateImageView(b.options.AllocationCallbacks, viewInfo)
		if err != nil {
			b.destroyImageData(data)
			return nil, errors.Wrap(err, "failed to create image view")
		}
	}

	if description.Sampler != nil {
		data.Sampler, _, err = b.device.CreateSampler(b.options.AllocationCallbacks, *description.Sampler)
		if err != nil {
			b.destroyImageData(data)
			return nil, errors.Wrap(err, "failed to create sampler")
		}
	}

	return data, nil
}

// AllocateImage places a new image in allocator, which must be backed by b. The image's memory
// requirements decide the size of the location.
func (b *ImageBackend) AllocateImage(allocator *chunkalloc.Allocator[*ImageData], description ImageDescription) (*chunkalloc.Location[*ImageData], error) {
	image, _, err := b.device.CreateImage(b.options.AllocationCallbacks, description.Image)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create an image to size its allocation")
	}
	requirements := image.MemoryRequirements()
	image.Destroy(b.options.AllocationCallbacks)

	if requirements.Alignment > b.alignment {
		return nil, errors.Newf("image requires an alignment of %d, but the backend's memory is aligned to %d",
			requirements.Alignment, b.alignment)
	}

	location, err := allocator.Allocate(memutils.AlignUp(requirements.Size, b.alignment))
	if err != nil {
		return nil, err
	}

	var data *ImageData
	location.Read(func(offset int, memory chunkalloc.Memory, _ *ImageData) {
		data, err = b.createImageData(description, memory, offset)
	})
	if err != nil {
		return nil, multierror.Append(err, allocator.Free(location))
	}

	location.SetData(data)
	return location, nil
}

// ImageCopier copies the contents of one image into another of the same description, typically
// with a compute shader. It returns false if the copy could not be performed.
type ImageCopier interface {
	CopyImage(dst, src *ImageData) (bool, error)
}

// ImageMover relocates image locations by creating a new image at the target and copying into it
// with an ImageCopier
type ImageMover struct {
	backend *ImageBackend
	copier  ImageCopier
}

var _ chunkalloc.Mover[*ImageData] = &ImageMover{}

func NewImageMover(backend *ImageBackend, copier ImageCopier) *ImageMover {
	return &ImageMover{
		backend: backend,
		copier:  copier,
	}
}

// Prepare creates an image, view, and sampler at target like the ones held by source
func (m *ImageMover) Prepare(target, source *chunkalloc.Location[*ImageData]) error {
	sourceData := source.Data()
	if sourceData == nil {
		return errors.Newf("%s has no image to relocate", source)
	}

	var data *ImageData
	var err error
	target.Read(func(offset int, memory chunkalloc.Memory, _ *ImageData) {
		data, err = m.backend.createImageData(sourceData.Description, memory, offset)
	})
	if err != nil {
		return err
	}

	target.SetData(data)
	return nil
}

func (m *ImageMover) Copy(target, source *chunkalloc.Location[*ImageData]) (bool, error) {
	dst := target.Data()
	if dst == nil {
		return false, nil
	}

	var src *ImageData
	source.Read(func(_ int, memory chunkalloc.Memory, data *ImageData) {
		if memory != nil {
			src = data
		}
	})
	if src == nil {
		return false, nil
	}

	return m.copier.CopyImage(dst, src)
}
