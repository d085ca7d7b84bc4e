// Package protocol encodes the group update exchange between a broker and
// the controller.
//
// Messages use the protobuf wire format without generated code:
//
//	request:  1 group_id (bytes) | 2 link_id (bytes) | 3 promoted (varint, v1+)
//	response: 1 error_code (zigzag varint) | 2 throttle_time_ms (varint)
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	MinVersion int16 = 0
	MaxVersion int16 = 1
)

const (
	fieldGroupID  protowire.Number = 1
	fieldLinkID   protowire.Number = 2
	fieldPromoted protowire.Number = 3

	fieldErrorCode      protowire.Number = 1
	fieldThrottleTimeMs protowire.Number = 2
)

func checkVersion(v int16) error {
	if v < MinVersion || v > MaxVersion {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrVersion, v, MinVersion, MaxVersion)
	}
	return nil
}

// UpdateGroupRequestData is the request payload.
type UpdateGroupRequestData struct {
	GroupID  string
	LinkID   string
	Promoted bool
}

// UpdateGroupRequest is a payload bound to a protocol version.
type UpdateGroupRequest struct {
	Data    UpdateGroupRequestData
	Version int16
}

// UpdateGroupRequestBuilder builds requests for a negotiated version.
type UpdateGroupRequestBuilder struct {
	data UpdateGroupRequestData
}

func NewUpdateGroupRequestBuilder(data UpdateGroupRequestData) *UpdateGroupRequestBuilder {
	return &UpdateGroupRequestBuilder{data: data}
}

// Build binds the payload to version.
func (b *UpdateGroupRequestBuilder) Build(version int16) (*UpdateGroupRequest, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	return &UpdateGroupRequest{Data: b.data, Version: version}, nil
}

func (b *UpdateGroupRequestBuilder) String() string {
	return fmt.Sprintf("UpdateGroupRequestData(groupId=%q, linkId=%q, promoted=%t)", b.data.GroupID, b.data.LinkID, b.data.Promoted)
}

// Encode serializes the request for its version. Version 0 drops Promoted.
func (r *UpdateGroupRequest) Encode() ([]byte, error) {
	if err := checkVersion(r.Version); err != nil {
		return nil, err
	}
	var b []byte
	b = protowire.AppendTag(b, fieldGroupID, protowire.BytesType)
	b = protowire.AppendString(b, r.Data.GroupID)
	b = protowire.AppendTag(b, fieldLinkID, protowire.BytesType)
	b = protowire.AppendString(b, r.Data.LinkID)
	if r.Version >= 1 {
		b = protowire.AppendTag(b, fieldPromoted, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.Data.Promoted))
	}
	return b, nil
}

// ParseUpdateGroupRequest decodes buf as a request of the given version.
// Unknown fields are skipped.
func ParseUpdateGroupRequest(buf []byte, version int16) (*UpdateGroupRequest, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	req := &UpdateGroupRequest{Version: version}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		buf = buf[n:]
		switch {
		case num == fieldGroupID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(buf)
			if m < 0 {
				return nil, fmt.Errorf("%w: group_id: %v", ErrMalformed, protowire.ParseError(m))
			}
			req.Data.GroupID, n = v, m
		case num == fieldLinkID && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(buf)
			if m < 0 {
				return nil, fmt.Errorf("%w: link_id: %v", ErrMalformed, protowire.ParseError(m))
			}
			req.Data.LinkID, n = v, m
		case num == fieldPromoted && typ == protowire.VarintType && version >= 1:
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return nil, fmt.Errorf("%w: promoted: %v", ErrMalformed, protowire.ParseError(m))
			}
			req.Data.Promoted, n = protowire.DecodeBool(v), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
		}
		buf = buf[n:]
	}
	if req.Data.GroupID == "" {
		return nil, fmt.Errorf("%w: group_id is required", ErrMalformed)
	}
	return req, nil
}

// ErrorResponse converts err into a response carrying its code and the
// given throttle time.
func (r *UpdateGroupRequest) ErrorResponse(throttleTimeMs int32, err error) UpdateGroupResponse {
	return UpdateGroupResponse{ErrorCode: CodeOf(err), ThrottleTimeMs: throttleTimeMs}
}

// UpdateGroupResponse is the controller's reply.
type UpdateGroupResponse struct {
	ErrorCode      ErrorCode
	ThrottleTimeMs int32
}

func (r UpdateGroupResponse) Encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldErrorCode, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(r.ErrorCode)))
	b = protowire.AppendTag(b, fieldThrottleTimeMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ThrottleTimeMs))
	return b
}

// ParseUpdateGroupResponse decodes a response.
func ParseUpdateGroupResponse(buf []byte) (UpdateGroupResponse, error) {
	var r UpdateGroupResponse
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return UpdateGroupResponse{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		buf = buf[n:]
		if typ != protowire.VarintType || (num != fieldErrorCode && num != fieldThrottleTimeMs) {
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return UpdateGroupResponse{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			buf = buf[n:]
			continue
		}
		v, m := protowire.ConsumeVarint(buf)
		if m < 0 {
			return UpdateGroupResponse{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		if num == fieldErrorCode {
			r.ErrorCode = ErrorCode(protowire.DecodeZigZag(v))
		} else {
			r.ThrottleTimeMs = int32(v)
		}
		buf = buf[m:]
	}
	return r, nil
}
