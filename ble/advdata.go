package ble

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AD Types (Advertising Data Types) used in EIR/AD payloads
const (
	ADTypeFlags                        = 0x01
	ADTypeIncomplete128BitServiceUUIDs = 0x06
	ADTypeComplete128BitServiceUUIDs   = 0x07
	ADTypeShortenedLocalName           = 0x08
	ADTypeCompleteLocalName            = 0x09
	ADTypeTxPowerLevel                 = 0x0A
	ADTypeManufacturerSpecificData     = 0xFF
)

// Advertising flags (used in ADTypeFlags)
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxAdvertisingDataLen is the BLE 4.x advertising payload limit
const MaxAdvertisingDataLen = 31

// ADStructure is a single TLV structure in advertising data.
// Format: [Length: 1 byte] [Type: 1 byte] [Data: N bytes], where Length
// covers the type byte but not itself.
type ADStructure struct {
	Type byte
	Data []byte
}

// EncodeADStructures encodes AD structures into one advertising payload
func EncodeADStructures(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max 255)", length)
		}
		buf = append(buf, byte(length))
		buf = append(buf, s.Type)
		buf = append(buf, s.Data...)
	}
	if len(buf) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxAdvertisingDataLen, len(buf))
	}
	return buf, nil
}

// DecodeADStructures parses an advertising payload into AD structures
func DecodeADStructures(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0

	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			// Padding or end of data
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}

		adType := data[offset]
		offset++
		adData := make([]byte, length-1)
		copy(adData, data[offset:offset+length-1])
		offset += length - 1

		structures = append(structures, ADStructure{
			Type: adType,
			Data: adData,
		})
	}

	return structures, nil
}

// AdvertisingData is the decoded form of one device's advertisement
type AdvertisingData struct {
	LocalName        string
	ServiceUUIDs     []uuid.UUID
	ManufacturerData map[uint16][]byte
	TxPowerLevel     *int
}

// Encode serializes the advertisement into AD structures. The result is
// subject to the 31-byte advertising payload limit.
func (d *AdvertisingData) Encode() ([]byte, error) {
	structures := []ADStructure{
		{Type: ADTypeFlags, Data: []byte{FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported}},
	}

	if len(d.ServiceUUIDs) > 0 {
		data := make([]byte, len(d.ServiceUUIDs)*16)
		for i, u := range d.ServiceUUIDs {
			copy(data[i*16:], u[:])
		}
		structures = append(structures, ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: data})
	}

	for companyID, payload := range d.ManufacturerData {
		data := make([]byte, 2+len(payload))
		binary.LittleEndian.PutUint16(data[0:2], companyID)
		copy(data[2:], payload)
		structures = append(structures, ADStructure{Type: ADTypeManufacturerSpecificData, Data: data})
	}

	if d.TxPowerLevel != nil {
		structures = append(structures, ADStructure{Type: ADTypeTxPowerLevel, Data: []byte{byte(int8(*d.TxPowerLevel))}})
	}

	if d.LocalName != "" {
		structures = append(structures, ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(d.LocalName)})
	}

	return EncodeADStructures(structures)
}

// DecodeAdvertisingData parses an advertising payload into its decoded form
func DecodeAdvertisingData(payload []byte) (*AdvertisingData, error) {
	structures, err := DecodeADStructures(payload)
	if err != nil {
		return nil, err
	}

	d := &AdvertisingData{}
	for _, s := range structures {
		switch s.Type {
		case ADTypeCompleteLocalName, ADTypeShortenedLocalName:
			d.LocalName = string(s.Data)
		case ADTypeComplete128BitServiceUUIDs, ADTypeIncomplete128BitServiceUUIDs:
			if len(s.Data)%16 != 0 {
				return nil, errors.New("malformed 128-bit service UUID list")
			}
			for i := 0; i < len(s.Data); i += 16 {
				var u uuid.UUID
				copy(u[:], s.Data[i:i+16])
				d.ServiceUUIDs = append(d.ServiceUUIDs, u)
			}
		case ADTypeManufacturerSpecificData:
			if len(s.Data) < 2 {
				return nil, errors.New("malformed manufacturer specific data")
			}
			if d.ManufacturerData == nil {
				d.ManufacturerData = make(map[uint16][]byte)
			}
			companyID := binary.LittleEndian.Uint16(s.Data[0:2])
			d.ManufacturerData[companyID] = append([]byte(nil), s.Data[2:]...)
		case ADTypeTxPowerLevel:
			if len(s.Data) == 1 {
				level := int(int8(s.Data[0]))
				d.TxPowerLevel = &level
			}
		}
	}

	return d, nil
}

// ToScanRecord converts decoded advertising data into the scan record
// shape attached to scan results
func (d *AdvertisingData) ToScanRecord() *ScanRecord {
	return &ScanRecord{
		LocalName:        d.LocalName,
		ServiceUUIDs:     append([]uuid.UUID(nil), d.ServiceUUIDs...),
		ManufacturerData: d.ManufacturerData,
		TxPowerLevel:     d.TxPowerLevel,
	}
}
