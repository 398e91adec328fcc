package projects

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("project not found")
	ErrInvalidUpdate = errors.New("invalid project update")
)

// ProjectStatus is the lifecycle stage of a project
type ProjectStatus string

const (
	StatusPlanning        ProjectStatus = "PLANNING"
	StatusDesign          ProjectStatus = "DESIGN"
	StatusPermitting      ProjectStatus = "PERMITTING"
	StatusFinancing       ProjectStatus = "FINANCING"
	StatusProcurement     ProjectStatus = "PROCUREMENT"
	StatusConstruction    ProjectStatus = "CONSTRUCTION"
	StatusCommissioning   ProjectStatus = "COMMISSIONING"
	StatusOperational     ProjectStatus = "OPERATIONAL"
	StatusMaintenance     ProjectStatus = "MAINTENANCE"
	StatusDecommissioning ProjectStatus = "DECOMMISSIONING"
	StatusCompleted       ProjectStatus = "COMPLETED"
	StatusCancelled       ProjectStatus = "CANCELLED"
	StatusOnHold          ProjectStatus = "ON_HOLD"
)

var validStatuses = map[ProjectStatus]bool{
	StatusPlanning: true, StatusDesign: true, StatusPermitting: true, StatusFinancing: true,
	StatusProcurement: true, StatusConstruction: true, StatusCommissioning: true,
	StatusOperational: true, StatusMaintenance: true, StatusDecommissioning: true,
	StatusCompleted: true, StatusCancelled: true, StatusOnHold: true,
}

// Valid reports whether s is a known status
func (s ProjectStatus) Valid() bool {
	return validStatuses[s]
}

// ProjectType classifies the project's customer segment
type ProjectType string

const (
	TypeResidential  ProjectType = "RESIDENTIAL"
	TypeCommercial   ProjectType = "COMMERCIAL"
	TypeIndustrial   ProjectType = "INDUSTRIAL"
	TypeUtilityScale ProjectType = "UTILITY_SCALE"
	TypeCommunity    ProjectType = "COMMUNITY"
	TypeResearch     ProjectType = "RESEARCH"
)

// Valid reports whether t is a known project type
func (t ProjectType) Valid() bool {
	switch t {
	case TypeResidential, TypeCommercial, TypeIndustrial, TypeUtilityScale, TypeCommunity, TypeResearch:
		return true
	}
	return false
}

// EnergySource is the generation technology
type EnergySource string

const (
	SourceSolarPV            EnergySource = "SOLAR_PV"
	SourceSolarThermal       EnergySource = "SOLAR_THERMAL"
	SourceBIPV               EnergySource = "BIPV"
	SourceWindOnshore        EnergySource = "WIND_ONSHORE"
	SourceWindOffshore       EnergySource = "WIND_OFFSHORE"
	SourceHydroelectric      EnergySource = "HYDROELECTRIC"
	SourceMicroHydro         EnergySource = "MICRO_HYDRO"
	SourcePumpedStorageHydro EnergySource = "PUMPED_STORAGE_HYDRO"
	SourceGeothermal         EnergySource = "GEOTHERMAL"
	SourceEnhancedGeothermal EnergySource = "ENHANCED_GEOTHERMAL"
	SourceBiomass            EnergySource = "BIOMASS"
	SourceBiogas             EnergySource = "BIOGAS"
	SourceBiofuel            EnergySource = "BIOFUEL"
	SourceOceanWave          EnergySource = "OCEAN_WAVE"
	SourceOceanTidal         EnergySource = "OCEAN_TIDAL"
	SourceOceanThermal       EnergySource = "OCEAN_THERMAL"
	SourceHybrid             EnergySource = "HYBRID"
)

var validSources = map[EnergySource]bool{
	SourceSolarPV: true, SourceSolarThermal: true, SourceBIPV: true,
	SourceWindOnshore: true, SourceWindOffshore: true,
	SourceHydroelectric: true, SourceMicroHydro: true, SourcePumpedStorageHydro: true,
	SourceGeothermal: true, SourceEnhancedGeothermal: true,
	SourceBiomass: true, SourceBiogas: true, SourceBiofuel: true,
	SourceOceanWave: true, SourceOceanTidal: true, SourceOceanThermal: true,
	SourceHybrid: true,
}

// Valid reports whether s is a known energy source
func (s EnergySource) Valid() bool {
	return validSources[s]
}

// Project is a renewable energy installation owned by an organization
type Project struct {
	ID                  string        `json:"id"`
	OrganizationID      string        `json:"organizationId"`
	OwnerID             string        `json:"ownerId,omitempty"`
	Name                string        `json:"name"`
	Description         string        `json:"description"`
	Type                ProjectType   `json:"type"`
	EnergySource        EnergySource  `json:"energySource"`
	Status              ProjectStatus `json:"status"`
	SystemCapacity      float64       `json:"systemCapacity"`
	EstimatedGeneration *float64      `json:"estimatedGeneration,omitempty"`
	EstimatedCost       *float64      `json:"estimatedCost,omitempty"`
	Currency            string        `json:"currency"`
	Location            string        `json:"location"`
	Progress            int           `json:"progress"`
	IsActive            bool          `json:"isActive"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

const maxNameLength = 200

// ProjectUpdate is a partial update; nil fields are left unchanged
type ProjectUpdate struct {
	Name                *string        `json:"name,omitempty"`
	Description         *string        `json:"description,omitempty"`
	Status              *ProjectStatus `json:"status,omitempty"`
	SystemCapacity      *float64       `json:"systemCapacity,omitempty"`
	EstimatedGeneration *float64       `json:"estimatedGeneration,omitempty"`
	EstimatedCost       *float64       `json:"estimatedCost,omitempty"`
	Progress            *int           `json:"progress,omitempty"`
	Location            *string        `json:"location,omitempty"`
	IsActive            *bool          `json:"isActive,omitempty"`
}

// DecodeUpdate parses and validates a JSON update, rejecting unknown fields
func DecodeUpdate(data []byte) (ProjectUpdate, error) {
	var update ProjectUpdate
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		return ProjectUpdate{}, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	if err := update.Validate(); err != nil {
		return ProjectUpdate{}, err
	}
	return update, nil
}

// Empty reports whether no field is set
func (u ProjectUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil &&
		u.SystemCapacity == nil && u.EstimatedGeneration == nil && u.EstimatedCost == nil &&
		u.Progress == nil && u.Location == nil && u.IsActive == nil
}

// Validate checks enum membership and numeric ranges of the set fields
func (u ProjectUpdate) Validate() error {
	if u.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidUpdate)
	}
	if u.Name != nil && (*u.Name == "" || len(*u.Name) > maxNameLength) {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidUpdate, maxNameLength)
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, *u.Status)
	}
	if u.SystemCapacity != nil && *u.SystemCapacity < 0 {
		return fmt.Errorf("%w: systemCapacity must not be negative", ErrInvalidUpdate)
	}
	if u.EstimatedGeneration != nil && *u.EstimatedGeneration < 0 {
		return fmt.Errorf("%w: estimatedGeneration must not be negative", ErrInvalidUpdate)
	}
	if u.EstimatedCost != nil && *u.EstimatedCost < 0 {
		return fmt.Errorf("%w: estimatedCost must not be negative", ErrInvalidUpdate)
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return fmt.Errorf("%w: progress must be between 0 and 100", ErrInvalidUpdate)
	}
	return nil
}

// AnalyticsFilter narrows the projects summarized for analytics; empty
// fields match everything
type AnalyticsFilter struct {
	OrganizationID string `json:"organizationId,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
}
