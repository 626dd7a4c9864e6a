package consts

const (
	// Number of system area sectors.
	ISO9660_SYSTEM_AREA_SECTORS = 16

	// Standard ISO9660 identifier.
	ISO9660_STD_IDENTIFIER = "CD001"

	// ISO9660 volume descriptor version (always 1).
	ISO9660_VOLUME_DESC_VERSION = 1

	// ISO9660 logical sector size. All ISO9660 content is addressed in these units.
	ISO9660_SECTOR_SIZE = 2048

	// ISO9660 volume descriptor header size
	ISO9660_VOLUME_DESC_HEADER_SIZE = 7

	// ISO9660 application use area size
	ISO9660_APPLICATION_USE_SIZE = 512

	// ISO9660 Filler 0x20 (space)
	ISO9660_FILLER = ' '

	// Maximum size of a single directory record.
	ISO9660_MAX_RECORD_SIZE = 255

	// Fixed part of a directory record, everything before the file identifier.
	ISO9660_RECORD_FIXED_SIZE = 33

	// Size of the root directory record embedded in the Primary Volume Descriptor.
	ISO9660_ROOT_RECORD_SIZE = 34

	// Largest file a single ISO9660 extent can describe.
	ISO9660_MAX_FILE_SIZE = 1<<32 - 1

	// Version suffix appended to file identifiers.
	ISO9660_FILE_VERSION = ";1"

	// Volume label written into the Primary Volume Descriptor when none is configured.
	DEFAULT_VOLUME_IDENTIFIER = "HYBRIDISO"

	// Application identifier written into the Primary Volume Descriptor.
	DEFAULT_APPLICATION_IDENTIFIER = "HYBRIDISO"

	// FAT volume label of a generated EFI System Partition. It must not name a top-level entry of the partition.
	DEFAULT_ESP_LABEL = "ESP"

	// El Torito bootable cdrom system identifier.
	EL_TORITO_BOOT_SYSTEM_ID = "EL TORITO SPECIFICATION"

	// Manufacturer identifier recorded in the validation entry of the boot catalog.
	EL_TORITO_MANUFACTURER_ID = "HYBRIDISO"

	// El Torito addresses boot images in "virtual" 512-byte sectors.
	EL_TORITO_SECTOR_SIZE = 512

	// Largest sector count a boot catalog entry can hold.
	EL_TORITO_MAX_SECTOR_COUNT = 0xFFFF

	// Size of every boot catalog entry.
	EL_TORITO_ENTRY_SIZE = 32

	// MBR and GPT are addressed in 512-byte sectors.
	DISK_SECTOR_SIZE = 512

	// Number of 512-byte disk sectors in one ISO9660 sector.
	DISK_SECTORS_PER_ISO_SECTOR = ISO9660_SECTOR_SIZE / DISK_SECTOR_SIZE

	// Number of entries in a GPT partition array.
	GPT_PARTITION_ENTRY_COUNT = 128

	// Size of a single GPT partition entry.
	GPT_PARTITION_ENTRY_SIZE = 128

	// Number of 512-byte sectors covered by a GPT partition array.
	GPT_PARTITION_ARRAY_SECTORS = GPT_PARTITION_ENTRY_COUNT * GPT_PARTITION_ENTRY_SIZE / DISK_SECTOR_SIZE

	// Number of header bytes protected by the GPT header CRC32.
	GPT_HEADER_SIZE = 92
)

// Fixed LBAs of the image header, in ISO9660 sectors.
const (
	PRIMARY_VOLUME_DESCRIPTOR_LBA = 16
	BOOT_RECORD_LBA               = 17
	TERMINATOR_LBA                = 18
	BOOT_CATALOG_LBA              = 19

	// First sector available for the directory tree when no ESP region is reserved.
	FIRST_CONTENT_LBA = 20

	// Start of the EFI System Partition region on hybrid images. The region is placed directly after the boot
	// catalog, ahead of the directory tree.
	ESP_START_LBA = FIRST_CONTENT_LBA

	// ESP_START_LBA expressed in 512-byte GPT sectors. This is also the GPT first usable LBA.
	GPT_FIRST_USABLE_LBA = ESP_START_LBA * DISK_SECTORS_PER_ISO_SECTOR
)

// GPT_BACKUP_ISO_SECTORS is the number of ISO9660 sectors reserved at the end of a hybrid image for the backup GPT
// partition array and header.
const GPT_BACKUP_ISO_SECTORS = (GPT_PARTITION_ARRAY_SECTORS + 1 + DISK_SECTORS_PER_ISO_SECTOR - 1) / DISK_SECTORS_PER_ISO_SECTOR
